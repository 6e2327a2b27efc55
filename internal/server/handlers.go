package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"assetd/internal/api"
	"assetd/internal/blobstore"
	"assetd/internal/store"
	"assetd/internal/uploadpolicy"
)

const defaultJSONMaxBody = 1 << 20 // 1 MiB

var idRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// writeErrorReq writes the JSON error envelope. Messages of 5xx errors stay
// in the log and never reach the client.
func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	e := resolveAPIError(status, err)

	fields := []any{"status", status, "code", e.code, "error_code", e.errCode, "error", e.err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}
	message := e.Error()
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		s.log().Warn("request rejected", fields...)
	default:
		if status >= 500 {
			s.log().Error("request error", fields...)
			message = "internal error"
		} else {
			s.log().Debug("request rejected", fields...)
		}
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: e.code, ErrorCode: e.errCode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

// apiError pins an error to its HTTP status and taxonomy codes.
type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return http.StatusText(e.status)
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error { return e.err }

// resolveAPIError returns the apiError inside err, filling blanks from the
// status defaults.
func resolveAPIError(status int, err error) apiError {
	e := apiError{status: status, err: err}
	if err != nil {
		errors.As(err, &e)
	}
	if e.status == 0 {
		e.status = status
	}
	def := statusDefaults[status]
	if e.code == "" {
		e.code = def.code
	}
	if e.errCode == 0 {
		e.errCode = def.errCode
	}
	return e
}

// makeAPIError wraps err unless it already carries a status.
func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	var existing apiError
	if errors.As(err, &existing) && existing.status != 0 {
		return existing
	}
	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequest(err error) error {
	return badRequestCode(err, ErrCodeInvalidArgument)
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, "not_found", code, err)
}

func conflict(err error) error {
	return makeAPIError(http.StatusConflict, "conflict", ErrCodeConflict, err)
}

func unauthorized(err error) error {
	return makeAPIError(http.StatusUnauthorized, "unauthorized", ErrCodeUnauthorized, err)
}

func forbidden(err error) error {
	return makeAPIError(http.StatusForbidden, "forbidden", ErrCodeForbidden, err)
}

func internalError(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeInternal, err)
}

func storeFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeStoreFailure, err)
}

func storageUnavailable(err error) error {
	return makeAPIError(http.StatusInternalServerError, "storage_unavailable", ErrCodeStorageUnavailable, err)
}

// policyRejected maps a validator rejection onto the client-error taxonomy.
func policyRejected(err error) error {
	if errors.Is(err, uploadpolicy.ErrSettingsNotFound) {
		return badRequestCode(err, ErrCodeSettingsNotFound)
	}
	var rejected *uploadpolicy.RejectedError
	if errors.As(err, &rejected) {
		return badRequestCode(err, ErrCodePolicyRejected)
	}
	return internalError(err)
}

// classifyError maps domain sentinels that escaped a service call.
func classifyError(err error) error {
	var apiErr apiError
	var rejected *uploadpolicy.RejectedError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &rejected):
		return policyRejected(err)
	case errors.Is(err, store.ErrAssetNotFound):
		return notFoundCode(err, ErrCodeAssetNotFound)
	case errors.Is(err, store.ErrOwnerNotFound):
		return notFoundCode(err, ErrCodeOwnerNotFound)
	case errors.Is(err, store.ErrSlotContended):
		return conflict(err)
	case errors.Is(err, blobstore.ErrNotFound):
		return notFoundCode(err, ErrCodeAssetNotFound)
	case errors.Is(err, blobstore.ErrUnavailable):
		return storageUnavailable(err)
	default:
		return storeFailure(err)
	}
}

func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, defaultJSONMaxBody)
	return json.NewDecoder(r.Body).Decode(dst)
}

func classifyDecodeJSONError(err error) error {
	if err == nil {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return badRequestCode(fmt.Errorf("invalid JSON payload"), ErrCodeInvalidJSON)
	}

	return badRequestCode(err, ErrCodeInvalidJSON)
}

func (s *Server) decodeJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
		return false
	}
	return true
}

// decodeOptionalJSONReq accepts an empty body as the zero value.
func (s *Server) decodeOptionalJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := decodeJSON(w, r, dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	e := resolveAPIError(http.StatusInternalServerError, classifyError(err))
	s.writeErrorReq(w, r, e.status, e)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, http.StatusInternalServerError, storeFailure(err))
}

func validateID(id string) bool {
	return idRegex.MatchString(id)
}

func requirePathValue(r *http.Request, name string) (string, error) {
	value := strings.TrimSpace(r.PathValue(name))
	if !validateID(value) {
		return "", badRequestCode(fmt.Errorf("invalid %s", name), ErrCodeInvalidID)
	}
	return value, nil
}

func requireIDs(ids []string) error {
	if len(ids) == 0 {
		return badRequestCode(fmt.Errorf("asset_ids are required"), ErrCodeMissingRequired)
	}
	for _, id := range ids {
		if !validateID(id) {
			return badRequestCode(fmt.Errorf("invalid id"), ErrCodeInvalidID)
		}
	}
	return nil
}

func queryIntDefault(r *http.Request, key string, def int) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, badRequestCode(fmt.Errorf("invalid %s", key), ErrCodeInvalidQuery)
	}
	if parsed < 0 {
		return 0, badRequestCode(fmt.Errorf("%s must be >= 0", key), ErrCodeInvalidQuery)
	}
	return parsed, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, badRequestCode(fmt.Errorf("invalid %s", key), ErrCodeInvalidQuery)
	}
	return parsed, nil
}
