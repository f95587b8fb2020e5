package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "module not found")
		if err.Error() != "[NOT_FOUND] module not found" {
			t.Errorf("expected [NOT_FOUND] module not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("exit status 128")
		err := Wrap(original, CodeHistoryUnavailable, "git log failed")
		expected := "[HISTORY_UNAVAILABLE] git log failed: exit status 128"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("ContextIsSorted", func(t *testing.T) {
		err := AddContext(New(CodeInvariant, "definition without a name"), CtxPath, "a.py")
		err = AddContext(err, CtxLine, 3)
		expected := "[INVARIANT_VIOLATION] definition without a name {line=3 path=a.py}"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("AddContextOnPlainError", func(t *testing.T) {
		err := AddContext(errors.New("boom"), CtxModule, "pkg.sub")
		if !IsCode(err, CodeInternal) {
			t.Errorf("expected plain errors to become internal, got %v", err)
		}
	})

	t.Run("IsCodeThroughFmtWrap", func(t *testing.T) {
		err := fmt.Errorf("building record: %w", Newf(CodeResolutionFailed, "cannot place %s", "x"))
		if !IsCode(err, CodeResolutionFailed) {
			t.Error("expected IsCode to see through fmt wrapping")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
		if CodeOf(err) != CodeResolutionFailed {
			t.Errorf("unexpected code %q", CodeOf(err))
		}
	})

	t.Run("CodeOfPlain", func(t *testing.T) {
		if CodeOf(errors.New("plain")) != "" {
			t.Error("expected empty code for plain error")
		}
	})
}
