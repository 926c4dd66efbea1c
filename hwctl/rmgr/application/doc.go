// Package application contém os casos de uso (regras de aplicação) do input
// system e do display controller.
//
// Ele depende apenas do pacote domain e não conhece net/http nem as
// implementações concretas dos pools.
// Ex.: StreamService.Create adquire LUT, ibuf, DMA e SID e desfaz tudo se
// algum passo falhar; FlipService.Notify descarta transições inválidas vindas
// do hardware em vez de derrubar o pipe.
package application
