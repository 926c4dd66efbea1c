// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - SlotPool: bitmap first-fit para entradas de LUT, canais de DMA e SIDs
//   - RegionPool: regiões do input buffer, best-fit sobre uma btree (github.com/google/btree)
//   - FlipQueues: filas de flip por pipe
//   - Pacer: token bucket por pipe usando golang.org/x/time/rate
//   - MemoryStatsStore / RedisStatsStore: estatísticas
package infra
