// Package logging provides structured logging using uber/zap.
//
// Production mode writes JSON; development mode writes colored console
// output at debug level. Output goes to stderr so stdout stays free for
// command output.
//
//	logger := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development)
//	defer logger.Sync()
//	logger.Info("Server starting", zap.String("addr", cfg.Addr()))
package logging
