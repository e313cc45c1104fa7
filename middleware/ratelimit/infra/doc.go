// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore: janela fixa ou deslizante por chave, com escalada e janitor
//   - ChanPool: semáforo simples para limitar chamadas simultâneas ao upstream
//   - MemoryStatsStore / RedisStatsStore: contadores das decisões
package infra
