package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// set at build time with -ldflags "-X github.com/vx-labs/chat-hub/cli.version=..."
var version = "dev"

func Version() string {
	return version
}

type Context struct {
	ID     string
	Logger *zap.Logger
	Audit  logrus.FieldLogger
}

// Bootstrap allocates the process id and builds the loggers every command
// shares.
func Bootstrap() *Context {
	id := uuid.New().String()
	ctx := &Context{
		ID: id,
	}
	var logger *zap.Logger
	var err error
	fields := []zap.Field{
		zap.String("node_id", id), zap.String("version", Version()),
	}
	if allocID := os.Getenv("NOMAD_ALLOC_ID"); allocID != "" {
		fields = append(fields,
			zap.String("nomad_alloc_id", os.Getenv("NOMAD_ALLOC_ID")),
			zap.String("nomad_alloc_name", os.Getenv("NOMAD_ALLOC_NAME")),
			zap.String("nomad_alloc_index", os.Getenv("NOMAD_ALLOC_INDEX")),
		)
	}
	opts := []zap.Option{
		zap.Fields(fields...),
	}
	if os.Getenv("ENABLE_PRETTY_LOG") == "true" {
		logger, err = zap.NewDevelopment(opts...)
	} else {
		logger, err = zap.NewProduction(opts...)
	}
	if err != nil {
		panic(err)
	}
	ctx.Logger = logger
	ctx.Audit = AuditLogger(id)
	return ctx
}

// AuditLogger returns the logger moderation and security events are written
// to.
func AuditLogger(id string) logrus.FieldLogger {
	logger := logrus.New()
	if os.Getenv("ENABLE_PRETTY_LOG") != "true" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger.WithField("emitter", "hub").WithField("node_id", id)
}

// Run blocks until the process receives a termination signal, then calls
// shutdown.
func (ctx *Context) Run(shutdown func()) {
	defer func() {
		if r := recover(); r != nil {
			ctx.Logger.Error("panic", zap.String("panic_log", fmt.Sprint(r)))
		}
		ctx.Logger.Sync()
	}()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	<-sigc
	ctx.Logger.Info("received termination signal")
	shutdown()
	ctx.Logger.Info("shutdown complete")
}
