// Package infrastructure provides reusable infrastructure components for Go applications.
package infrastructure

import (
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLoggerAdapter routes fx container events into a zap.Logger as structured
// entries. Wiring chatter goes to debug; lifecycle failures go to error.
type FxLoggerAdapter struct {
	logger *zap.Logger
}

// NewFxLoggerAdapter creates an adapter that implements fxevent.Logger.
func NewFxLoggerAdapter(logger *zap.Logger) fxevent.Logger {
	return &FxLoggerAdapter{logger: logger.Named("fx")}
}

// NewFxPrinter creates an adapter that implements fx.Printer.
func NewFxPrinter(logger *zap.Logger) fx.Printer {
	return &FxLoggerAdapter{logger: logger.Named("fx")}
}

// LogEvent implements fxevent.Logger.
func (p *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		p.logger.Debug("OnStart hook executing",
			zap.String("callee", e.FunctionName),
			zap.String("caller", e.CallerName))
	case *fxevent.OnStartExecuted:
		p.logHook("OnStart", e.CallerName, e.FunctionName, e.Err, e.Runtime.String())
	case *fxevent.OnStopExecuting:
		p.logger.Debug("OnStop hook executing",
			zap.String("callee", e.FunctionName),
			zap.String("caller", e.CallerName))
	case *fxevent.OnStopExecuted:
		p.logHook("OnStop", e.CallerName, e.FunctionName, e.Err, e.Runtime.String())
	case *fxevent.Supplied:
		p.logProvide("supplied", e.TypeName, e.ModuleName, e.Err)
	case *fxevent.Provided:
		p.logProvide("provided", strings.Join(e.OutputTypeNames, ", "), e.ModuleName, e.Err)
	case *fxevent.Invoking:
		p.logger.Debug("invoking", zap.String("function", e.FunctionName), moduleField(e.ModuleName))
	case *fxevent.Invoked:
		if e.Err != nil {
			p.logger.Error("invoke failed",
				zap.String("function", e.FunctionName),
				zap.String("stack", e.Trace),
				zap.Error(e.Err))
			return
		}
		p.logger.Debug("invoked", zap.String("function", e.FunctionName))
	case *fxevent.Stopping:
		p.logger.Debug("received signal", zap.String("signal", strings.ToUpper(e.Signal.String())))
	case *fxevent.Stopped:
		p.logResult("stopped", e.Err)
	case *fxevent.RollingBack:
		p.logger.Error("start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.RolledBack:
		p.logResult("rolled back", e.Err)
	case *fxevent.Started:
		p.logResult("started", e.Err)
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			p.logger.Error("custom logger initialization failed", zap.Error(e.Err))
			return
		}
		p.logger.Debug("initialized custom fxevent.Logger", zap.String("function", e.ConstructorName))
	default:
		p.logger.Debug("unhandled fx event", zap.String("type", strings.TrimPrefix(fmt.Sprintf("%T", event), "*fxevent.")))
	}
}

// Printf implements fx.Printer.
func (p *FxLoggerAdapter) Printf(format string, args ...any) {
	p.logger.Sugar().Debugf(format, args...)
}

func (p *FxLoggerAdapter) logHook(hook, caller, callee string, err error, runtime string) {
	if err != nil {
		p.logger.Error(hook+" hook failed",
			zap.String("callee", callee),
			zap.String("caller", caller),
			zap.Error(err))
		return
	}
	p.logger.Debug(hook+" hook executed",
		zap.String("callee", callee),
		zap.String("caller", caller),
		zap.String("runtime", runtime))
}

func (p *FxLoggerAdapter) logProvide(action, types, module string, err error) {
	if err != nil {
		p.logger.Error("error encountered while applying options",
			zap.String("type", types),
			moduleField(module),
			zap.Error(err))
		return
	}
	p.logger.Debug(action, zap.String("type", types), moduleField(module))
}

func (p *FxLoggerAdapter) logResult(action string, err error) {
	if err != nil {
		p.logger.Error(action+" with error", zap.Error(err))
		return
	}
	p.logger.Debug(action)
}

func moduleField(name string) zap.Field {
	if name == "" {
		return zap.Skip()
	}
	return zap.String("module", name)
}
