package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeTopicNotFound, "topic missing")
	if err.Error() != "[TOPIC_NOT_FOUND] topic missing" {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	withDetails := New(CodeInvalidRecipient, "bad entry").WithDetails("to[2]")
	if withDetails.Error() != "[INVALID_RECIPIENT] bad entry: to[2]" {
		t.Errorf("Unexpected message: %s", withDetails.Error())
	}
}

func TestErrorMatchingByCode(t *testing.T) {
	err := TopicNotFound("team")
	if !stderrors.Is(err, New(CodeTopicNotFound, "")) {
		t.Error("Errors with the same code should match")
	}
	if stderrors.Is(err, New(CodeTemplateNotFound, "")) {
		t.Error("Errors with different codes should not match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(cause, CodeInternal, "store notification")
	if !stderrors.Is(err, cause) {
		t.Error("Wrapped cause should be reachable via errors.Is")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(TemplateNotFound("welcome")) != CodeTemplateNotFound {
		t.Error("CodeOf should return the error's code")
	}
	if CodeOf(fmt.Errorf("plain")) != CodeInternal {
		t.Error("Uncoded errors should map to CodeInternal")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeInvalidRequest, http.StatusBadRequest},
		{CodeInvalidRecipient, http.StatusBadRequest},
		{CodeSubscriberRegistration, http.StatusBadRequest},
		{CodeTemplateRender, http.StatusBadRequest},
		{CodeTopicNotFound, http.StatusNotFound},
		{CodeTemplateNotFound, http.StatusNotFound},
		{CodeTopicAlreadyExists, http.StatusConflict},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(New(tt.code, "x")); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
