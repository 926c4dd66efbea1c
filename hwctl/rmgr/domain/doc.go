// Package domain define contratos e tipos de domínio para os gerenciadores de
// recursos do input system (ISYS) e para a fila de flips do display controller.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
