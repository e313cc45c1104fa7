// Package relay encaminha perguntas do formulário para a API de chat-completion
// (OpenAI-compatível) e devolve a resposta.
//
// Ele fica atrás do middleware de rate limit: quando o upstream responde 429,
// o relay devolve a espera ao cliente e avisa o limiter local (Penalizer),
// para que o próximo request do mesmo cliente já seja barrado localmente.
package relay
