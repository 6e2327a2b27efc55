package blobstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "assetd/internal/blobstore"

// Instrumented decorates a Gateway with metrics, tracing spans and error logging.
type Instrumented struct {
	next     Gateway
	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Instrument wraps next. A nil observer disables metrics; a nil logger uses slog.Default.
func Instrument(next Gateway, observer Observer, logger *slog.Logger) *Instrumented {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumented{
		next:     next,
		observer: observer,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
	}
}

func (g *Instrumented) Bucket() string {
	return g.next.Bucket()
}

func (g *Instrumented) PresignUpload(ctx context.Context, key, contentType string, maxBytes int64) (UploadDescriptor, error) {
	ctx, done := g.start(ctx, "presign_upload", key, attribute.Int64("blob.max_bytes", maxBytes))
	desc, err := g.next.PresignUpload(ctx, key, contentType, maxBytes)
	done(err)
	return desc, err
}

func (g *Instrumented) PresignDownload(ctx context.Context, key string, disposition Disposition, filename string) (string, error) {
	ctx, done := g.start(ctx, "presign_download", key, attribute.String("blob.disposition", string(disposition)))
	u, err := g.next.PresignDownload(ctx, key, disposition, filename)
	done(err)
	return u, err
}

func (g *Instrumented) Head(ctx context.Context, key string) (ObjectInfo, error) {
	ctx, done := g.start(ctx, "head", key)
	info, err := g.next.Head(ctx, key)
	done(err)
	return info, err
}

func (g *Instrumented) Get(ctx context.Context, key string) (*Object, error) {
	ctx, done := g.start(ctx, "get", key)
	obj, err := g.next.Get(ctx, key)
	done(err)
	return obj, err
}

func (g *Instrumented) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (ObjectInfo, error) {
	ctx, done := g.start(ctx, "put", key, attribute.Int64("blob.size", size))
	info, err := g.next.Put(ctx, key, contentType, r, size)
	done(err)
	return info, err
}

func (g *Instrumented) Delete(ctx context.Context, key string) error {
	ctx, done := g.start(ctx, "delete", key)
	err := g.next.Delete(ctx, key)
	done(err)
	return err
}

func (g *Instrumented) start(ctx context.Context, op, key string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	attrs = append(attrs, attribute.String("blob.operation", op), attribute.String("blob.key", key), attribute.String("blob.bucket", g.next.Bucket()))
	ctx, span := g.tracer.Start(ctx, "blobstore."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		g.observer.RecordOperation(op, time.Since(started), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if !isNotFound(err) {
				g.logger.Error("storage operation failed", "operation", op, "key", key, "bucket", g.next.Bucket(), "error", err)
			}
		}
		span.End()
	}
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}
