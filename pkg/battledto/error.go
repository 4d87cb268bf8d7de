package battledto

// DomainError carries a machine code plus the HTTP-equivalent status used in
// structured error notices.
type DomainError struct {
    Code       string
    Message    string
    HTTPStatus int
}

func (e DomainError) Error() string {
    if e.Message != "" {
        return e.Message
    }
    if e.Code != "" {
        return e.Code
    }
    return "battle service error"
}

// Well-known error codes.
const (
    CodeNotFound      = "NOT_FOUND"
    CodeInvalidState  = "INVALID_STATE"
    CodeForbidden     = "FORBIDDEN"
    CodeInternalError = "INTERNAL_ERROR"
)
