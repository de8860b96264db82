package logger

// CronLogger 适配 robfig/cron 的 Logger 接口
type CronLogger struct{}

// Info 记录调度器常规日志
func (CronLogger) Info(msg string, keysAndValues ...interface{}) {
	S().Named("cron").Debugw(msg, keysAndValues...)
}

// Error 记录调度器错误（含 panic 恢复）
func (CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	S().Named("cron").Errorw(msg, append(keysAndValues, "error", err)...)
}
