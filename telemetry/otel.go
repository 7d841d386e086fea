// Package telemetry exports the spans of the cache to an OTLP collector.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"time"

	"github.com/agentuity/querycache/logger"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

// GenerateOTLPBearerToken signs token with sharedSecret in the form the
// collector expects: token.base64(sha256(secret.token)).
func GenerateOTLPBearerToken(sharedSecret string, token string) (string, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(sharedSecret + "." + token)); err != nil {
		return "", errors.Wrap(err, "error hashing token")
	}
	secret := hash.Sum(nil)
	tok2 := base64.StdEncoding.EncodeToString(secret)
	return token + "." + tok2, nil
}

type ShutdownFunc func()

// New returns a tracer provider batching spans to the collector at
// otlpServerURL. The shutdown func flushes pending spans.
func New(ctx context.Context, log logger.Logger, otlpServerURL string, authToken string, serviceName string) (*sdktrace.TracerProvider, ShutdownFunc, error) {
	otlpURL, err := url.Parse(otlpServerURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error parsing otlpServerURL")
	}
	if otlpURL.Scheme != "http" && otlpURL.Scheme != "https" {
		return nil, nil, errors.Newf("unsupported otlp url scheme %q", otlpURL.Scheme)
	}
	otlpURL.Path = "/v1/traces"

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		log.Warn("incomplete telemetry resource: %s", err)
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "error creating resource")
	}

	headers := make(map[string]string)
	if authToken != "" {
		headers["Authorization"] = "Bearer " + authToken
	}
	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(otlpURL.String()),
		otlptracehttp.WithHeaders(headers),
		otlptracehttp.WithTimeout(time.Second * 10),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if otlpURL.Scheme == "http" {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error creating trace exporter")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	return tp, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Error("error flushing spans: %s", err)
		}
	}, nil
}
