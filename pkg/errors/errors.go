// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeTokenizerVocabularyUnavailable Code = "tokenizer.vocabulary.unavailable"

	CodeEmbeddingRequestUpstreamFailure Code = "embedding.request.upstream_failure"
	CodeEmbeddingRequestRejected        Code = "embedding.request.rejected"
	CodeEmbeddingResponseInvalid        Code = "embedding.response.invalid"
	CodeEmbeddingRetryExhausted         Code = "embedding.retry.exhausted"
	CodeEmbeddingConfigInvalid          Code = "embedding.config.invalid"

	CodeIndexQueryUnavailable  Code = "index.query.unavailable"
	CodeIndexQueryInvalid      Code = "index.query.invalid_input"
	CodeIndexUpsertUnavailable Code = "index.upsert.unavailable"
	CodeIndexUpsertInvalid     Code = "index.upsert.invalid_input"
	CodeIndexGetNotFound       Code = "index.get.not_found"
	CodeIndexOpenUnavailable   Code = "index.open.unavailable"

	CodeStoreShaderSaveConflict Code = "store.shader.save.conflict"
	CodeStoreShaderGetNotFound  Code = "store.shader.get.not_found"
	CodeStoreShaderInvalid      Code = "store.shader.invalid_input"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"

	CodePromptComposeTooLarge Code = "prompt.compose.too_large"

	CodeGenerationRequestUpstreamFailure Code = "generation.request.upstream_failure"
	CodeGenerationRequestRejected        Code = "generation.request.rejected"
	CodeGenerationRetryExhausted         Code = "generation.retry.exhausted"
	CodeGenerationResponseEmpty          Code = "generation.response.empty"

	CodeProviderRequestInvalid  Code = "provider.request.invalid"
	CodeProviderUpstreamFailure Code = "provider.upstream.failure"
	CodeProviderNotFound        Code = "provider.registry.not_found"
	CodeProviderAllUnavailable  Code = "provider.routing.unavailable"
	CodeProviderInvalidModelRef Code = "provider.routing.invalid_model_ref"
	CodeProviderKeyInvalid      Code = "provider.key.invalid"
	CodeProviderKeyCheckFailed  Code = "provider.key.upstream_failure"

	CodePipelineRequestInvalid Code = "pipeline.request.invalid_input"
	CodePipelineRequestTimeout Code = "pipeline.request.timeout"

	CodeIngestCatalogInvalid Code = "ingest.catalog.invalid_format"
	CodeIngestReadFailure    Code = "ingest.catalog.read.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretURIInvalid     Code = "secret.uri.invalid"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretKeyringFailure Code = "secret.keyring.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"
)

// Pipeline stages attached to errors via FieldStage.
const (
	StageTokenize   = "tokenize"
	StageEmbedding  = "embedding"
	StageRetrieval  = "retrieval"
	StageCompose    = "compose"
	StageGeneration = "generation"
	StageClean      = "clean"
	StagePipeline   = "pipeline"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldStage(stage string) Attr {
	return Field("stage", stage)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldModel(value string) Attr {
	return Field("model", value)
}

// FieldUpstreamStatus records the HTTP status returned by an upstream API.
// Zero means the request never got a response.
func FieldUpstreamStatus(status int) Attr {
	return Field("upstream_status", status)
}

func FieldRetryable(retryable bool) Attr {
	return Field("retryable", retryable)
}

func FieldShaderID(value string) Attr {
	return Field("shader_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// Recode re-classifies err under a new code. oops reports the innermost code
// of a chain, so the cause is detached from the oops chain while remaining
// reachable through errors.Is. Fields of the cause are carried forward and
// may be overridden by fields.
func Recode(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	pairs := make([]any, 0, len(fields)*2+8)
	for k, v := range FieldsOf(err) {
		pairs = append(pairs, k, v)
	}
	pairs = append(pairs, flatten(fields)...)

	return oops.Code(code).With(pairs...).Wrapf(detached{cause: err}, "%s", msg)
}

type detached struct {
	cause error
}

func (d detached) Error() string { return d.cause.Error() }

func (d detached) Is(target error) bool { return stderrors.Is(d.cause, target) }

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	case nil:
		return ""
	default:
		return Code(fmt.Sprintf("%v", code))
	}
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// StageOf returns the pipeline stage recorded on err, if any.
func StageOf(err error) string {
	stage, _ := FieldsOf(err)["stage"].(string)
	return stage
}

// UpstreamStatusOf returns the upstream HTTP status recorded on err, or 0.
func UpstreamStatusOf(err error) int {
	status, _ := FieldsOf(err)["upstream_status"].(int)
	return status
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsRejected(err error) bool {
	return reason(CodeOf(err)) == "rejected"
}

func IsTooLarge(err error) bool {
	return reason(CodeOf(err)) == "too_large"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUnavailable(err error) bool {
	return reason(CodeOf(err)) == "unavailable"
}

func IsExhausted(err error) bool {
	return reason(CodeOf(err)) == "exhausted"
}

// IsEmpty reports an upstream call that succeeded without usable output.
func IsEmpty(err error) bool {
	return reason(CodeOf(err)) == "empty"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && strings.HasSuffix(reason(code), "failure")
}

// IsRetryable reports whether a retry of the failed operation could succeed.
// An explicit retryable field wins over the code classification.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if v, ok := FieldsOf(err)["retryable"].(bool); ok {
		return v
	}
	return IsUpstreamFailure(err) || IsTimeout(err)
}

// IsRetryableStatus classifies an upstream HTTP status. Zero means no response
// was received (network failure).
func IsRetryableStatus(status int) bool {
	switch {
	case status == 0:
		return true
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err), IsRejected(err):
		return http.StatusBadRequest
	case IsTooLarge(err):
		return http.StatusRequestEntityTooLarge
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUnavailable(err):
		return http.StatusServiceUnavailable
	case IsUpstreamFailure(err), IsExhausted(err), IsEmpty(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeServerInternalFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
