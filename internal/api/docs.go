package api

// @title Sigflow API
// @version 1.0
// @description Trading signal priority scoring and dispatch pipeline API

// @contact.name API Support

// @host localhost:8082
// @BasePath /api/v1

// @tag.name Configs
// @tag.description Priority configuration management operations

// @tag.name Signals
// @tag.description Signal ledger query operations

// @tag.name Dispatch
// @tag.description Dispatch mode and on-demand evaluation operations

// @tag.name Scheduler
// @tag.description Cycle scheduler status and trigger operations

// @tag.name Analytics
// @tag.description Daily summary and utilization reporting operations

// @tag.name Watchlist
// @tag.description Monitored ticker and timeframe management operations

// @tag.name WebSocket
// @tag.description Real-time decision streaming operations
