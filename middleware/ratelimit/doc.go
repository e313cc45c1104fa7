// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência
// na frente do proxy de chat.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, penalidade do upstream, acquire/timeout)
//   - infra: implementações concretas (janela fixa/deslizante, semáforo, stats)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (header/XFF/X-Real-IP/RemoteAddr, senão "unknown")
//  2. Chama a camada application para obter a decisão
//  3. Se bloqueado, responde 429 com JSON {error, details, retryAfter} e Retry-After
//  4. Se permitido, guarda a chave no contexto e chama o próximo handler (relay)
//
// Se o upstream responder 429, o relay usa KeyFromContext + Service.Penalize
// para estender o bloqueio do cliente.
package ratelimit
