package diag

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为组件/阶段式结构化日志器：单行 JSON，字段 comp/stage/code/dur_ms/count/file_id/kv。
// 底层为 zap；nil *Logger 上的所有方法均为 no-op。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewLogger 以配置的 level 初始化，日志写入 dir（默认 logs/），10MiB 轮转。
func NewLogger(corrID, level, dir string) *Logger {
	if strings.TrimSpace(dir) == "" {
		dir = "logs"
	}
	sink := NewRotatingFile(dir, 10*1024*1024)
	l := NewLoggerTo(corrID, level, sink)
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写入任意 WriteSyncer（测试或 stderr）。
func NewLoggerTo(corrID, level string, ws zapcore.WriteSyncer) *Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcRFC3339,
		EncodeDuration: zapcore.MillisDurationEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
	})
	core := zapcore.NewCore(enc, ws, parseLevel(level))
	// 写失败时 zap 会输出到 ErrorOutput；保持 stderr 兜底
	z := zap.New(core, zap.ErrorOutput(zapcore.Lock(zapcore.AddSync(stderr{}))))
	if corrID != "" {
		z = z.With(zap.String("corr_id", corrID))
	}
	return &Logger{z: z}
}

func utcRFC3339(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func eventFields(comp, stage, fileID string, kv map[string]string) []zap.Field {
	fs := []zap.Field{zap.String("comp", comp), zap.String("stage", stage)}
	if fileID != "" {
		fs = append(fs, zap.String("file_id", fileID))
	}
	if len(kv) > 0 {
		fs = append(fs, zap.Any("kv", kv))
	}
	return fs
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWith(comp, msg, "", nil)
}

// StartWith 记录带 file_id 与键值的 start。
func (l *Logger) StartWith(comp, msg, fileID string, kv map[string]string) *Timer {
	if l == nil {
		return nil
	}
	l.z.Info(msg, eventFields(comp, "start", fileID, kv)...)
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID string, kv map[string]string) {
	if l == nil {
		return
	}
	l.z.Debug(msg, eventFields(comp, "start", fileID, kv)...)
}

// Warn 记录可继续的异常（跳过的文件等）。
func (l *Logger) Warn(comp, code, msg, fileID string, kv map[string]string) {
	if l == nil {
		return
	}
	fs := append(eventFields(comp, "warn", fileID, kv), zap.String("code", code))
	l.z.Warn(msg, fs...)
}

// Error 记录 error 事件；durSince 非空时附带 dur_ms。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWith(comp, code, msg, durSince, "", nil)
}

// ErrorWith 支持 file_id 与键值。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID string, kv map[string]string) {
	if l == nil {
		return
	}
	fs := append(eventFields(comp, "error", fileID, kv), zap.String("code", code))
	if durSince != nil {
		fs = append(fs, zap.Int64("dur_ms", time.Since(*durSince).Milliseconds()))
	}
	l.z.Error(msg, fs...)
}

// Sync 刷新缓冲并关闭文件 sink。
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Finish 记录 finish；count 为本阶段处理量（行/文件）。
func (t *Timer) Finish(msg string, count int64) {
	t.FinishKV(msg, count, nil)
}

// FinishKV 记录带键值的 finish。
func (t *Timer) FinishKV(msg string, count int64, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	fs := append(eventFields(t.comp, "finish", t.fileID, kv),
		zap.Int64("dur_ms", time.Since(t.t0).Milliseconds()),
		zap.Int64("count", count))
	t.l.z.Info(msg, fs...)
}

// Elapsed 返回自 start 起的耗时。
func (t *Timer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.t0)
}
