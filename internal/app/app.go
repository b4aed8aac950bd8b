package app

// Application wires the synchronization core together: one gateway, one
// history slot, one active-conversation controller and one document registry.
// The presentation layer only ever talks to these four.
type Application struct {
	Config    Config
	Logger    *Logger
	Gateway   Gateway
	History   *HistoryStore
	Chat      *ChatController
	Documents *DocumentRegistry
}

func NewApplication(cfg Config, mockMode bool) *Application {
	logger := NewLogger(DefaultLogWriter())

	var gw Gateway
	if mockMode {
		gw = NewMockGateway()
	} else {
		gw = NewClient(cfg.BaseURL, cfg.RequestTimeout())
	}

	history := NewHistoryStore(cfg.HistoryPath, logger)
	history.Load()

	return &Application{
		Config:    cfg,
		Logger:    logger,
		Gateway:   gw,
		History:   history,
		Chat:      NewChatController(gw, history, logger),
		Documents: NewDocumentRegistry(gw, logger),
	}
}
