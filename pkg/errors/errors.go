// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error, shaped as
// area.operation.reason.
type Code string

const (
	CodeConfigLoadReadFailure       Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat    Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue  Code = "config.validate.invalid_value"
	CodeConfigCredentialMissing     Code = "config.credential.missing"
	CodeConfigBootstrapWriteFailure Code = "config.bootstrap.write.failure"

	CodeDocumentReadFailure        Code = "document.read.failure"
	CodeDocumentParseInvalidFormat Code = "document.parse.invalid_format"
	CodeDocumentValidateInvalid    Code = "document.validate.invalid"
	CodeDocumentFormatUnsupported  Code = "document.format.unsupported"

	CodeChunkerTokenizerFailure Code = "chunker.tokenizer.failure"
	CodeChunkerOptionsInvalid   Code = "chunker.options.invalid"

	CodeEmbeddingRequestInvalid  Code = "embedding.request.invalid"
	CodeEmbeddingResponseInvalid Code = "embedding.response.invalid"
	CodeEmbeddingUpstreamFailure Code = "embedding.upstream.failure"
	CodeEmbeddingCacheFailure    Code = "embedding.cache.failure"

	CodeStoreConnectFailure         Code = "store.connect.failure"
	CodeStoreConnectUnauthorized    Code = "store.connect.unauthorized"
	CodeStoreBackendUnsupported     Code = "store.backend.unsupported"
	CodeStoreRecordInvalid          Code = "store.record.invalid"
	CodeStoreRecordDimensionInvalid Code = "store.record.dimension.invalid"
	CodeStoreMetadataInvalid        Code = "store.metadata.invalid"
	CodeStoreSaveConflict           Code = "store.save.conflict"
	CodeStoreSaveBatchFailure       Code = "store.save.batch.failure"
	CodeStoreSearchInvalid          Code = "store.search.invalid"
	CodeStoreDatabaseFailure        Code = "store.database.failure"
	CodeStoreUpstreamFailure        Code = "store.upstream.failure"
	CodeStoreDumpUnsupported        Code = "store.dump.unsupported"

	CodeQueryInputInvalid            Code = "query.input.invalid"
	CodeQueryRetrieveFailure         Code = "query.retrieve.failure"
	CodeQueryGenerateUpstreamFailure Code = "query.generate.upstream.failure"

	CodeProviderRequestInvalid  Code = "provider.request.invalid"
	CodeProviderResponseInvalid Code = "provider.response.invalid"
	CodeProviderUpstreamFailure Code = "provider.upstream.failure"
	CodeProviderNotFound        Code = "provider.registry.not_found"
	CodeProviderKeyInvalid      Code = "provider.key.invalid"
	CodeProviderKeyCheckFailure Code = "provider.key_check.upstream.failure"

	CodeSecretInvalidInput   Code = "secret.input.invalid"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretListFailure    Code = "secret.list.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"
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

func FieldCollection(value string) Attr {
	return Field("collection", value)
}

func FieldBackend(value string) Attr {
	return Field("backend", value)
}

func FieldDocument(value string) Attr {
	return Field("document", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

// coded pins a code to one link of an error chain. oops resolves codes to
// the deepest link, so the outermost code is tracked here instead.
type coded struct {
	code Code
	err  error
}

func (c *coded) Error() string { return c.err.Error() }
func (c *coded) Unwrap() error { return c.err }

func mark(code Code, err error) error {
	return &coded{code: code, err: err}
}

func New(code Code, msg string, fields ...Attr) error {
	return mark(code, oops.Code(code).With(flatten(fields)...).New(msg))
}

func Errorf(code Code, format string, args ...any) error {
	return mark(code, oops.Code(code).Errorf(format, args...))
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return mark(code, oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg))
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return mark(code, oops.Code(code).Wrapf(err, format, args...))
}

// With adds structured fields to an existing error chain without changing
// its code.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return mark(code, oops.Code(code).With(flatten(fields)...).Wrap(err))
}

// CodeOf returns the outermost code in the chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	var c *coded
	if stderrors.As(err, &c) {
		return c.code
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

// CodesOf returns every code in the chain, outermost first.
func CodesOf(err error) []Code {
	var codes []Code
	walk(err, func(e error) {
		if c, ok := e.(*coded); ok {
			codes = append(codes, c.code)
		}
	})
	return codes
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
	for _, c := range CodesOf(err) {
		if c == code {
			return true
		}
	}
	return CodeOf(err) == code
}

// IsConfiguration reports a missing or invalid setting.
func IsConfiguration(err error) bool {
	return hasFamily(err, "config.")
}

// IsConnection reports that a vector store backend could not be reached or
// rejected the credentials.
func IsConnection(err error) bool {
	return hasFamily(err, "store.connect.")
}

// IsDocumentFormat reports an unparseable or unsupported source document.
func IsDocumentFormat(err error) bool {
	return hasFamily(err, "document.")
}

// IsBatchUpload reports a save that stopped part way. FieldsOf carries the
// uploaded and total counts.
func IsBatchUpload(err error) bool {
	return HasCode(err, CodeStoreSaveBatchFailure)
}

// IsQuery reports a failed retrieval or generation.
func IsQuery(err error) bool {
	return hasFamily(err, "query.")
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

func IsUnauthorized(err error) bool {
	r := reason(CodeOf(err))
	return r == "unauthorized" || r == "forbidden" || r == "denied"
}

func IsUnsupported(err error) bool {
	return reason(CodeOf(err)) == "unsupported"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case IsUnsupported(err):
		return http.StatusNotImplemented
	case IsUpstreamFailure(err), IsConnection(err):
		return http.StatusBadGateway
	case IsConfiguration(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return mark(CodeServerInternalFailure, oops.Code(CodeServerInternalFailure).Wrap(joined))
}

func hasFamily(err error, prefix string) bool {
	for _, c := range CodesOf(err) {
		if strings.HasPrefix(string(c), prefix) {
			return true
		}
	}
	return false
}

func walk(err error, fn func(error)) {
	for err != nil {
		fn(err)
		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				walk(inner, fn)
			}
			return
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		default:
			return
		}
	}
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
