// Package rmgr expõe o gerenciador de recursos do input system e as filas de
// flip do display controller por uma API HTTP/JSON (net/http).
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (slots, pools, flips, buffers, streams), sem net/http
//   - infra: pools por bitmap e por região, filas de flip, pacer, stats
//   - application: casos de uso (contexto ISYS, retry de acquire, streams,
//     registro no CSI-RX, serviço de flip)
//   - rmgr (este pacote): wiring dos componentes + handlers HTTP + tradução
//     de erro para status/headers
//
// Fluxo típico de um stream de captura:
//
//  1. POST /streams adquire LUT, ibuf, DMA e SID e registra a thread no CSI-RX
//  2. GET /streams/{id} devolve a configuração calculada
//  3. DELETE /streams/{id} devolve tudo
//
// Fluxo de display-commit:
//
//  1. POST /buffers registra o buffer
//  2. POST /pipes/{pipe}/flips enfileira um flip com um ou mais buffers
//  3. POST /flips/{id}/notify repassa a notificação do hardware (sempre 202,
//     transições inválidas são descartadas); POST /flips/{id}/state é a
//     forma estrita, que responde 409
//  4. POST /flips/completed retira os flips terminais
//
// O binário cmd/rmgrd lê a configuração (YAML + variáveis de ambiente) e serve
// esta API.
package rmgr
