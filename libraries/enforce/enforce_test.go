package enforce

import (
	"errors"
	"testing"
)

func TestEnforcePasses(t *testing.T) {
	ENFORCE(true, "should not panic")
	ENFORCE(nil, "nil error should not panic")
	var err error
	ENFORCE(err, "typed nil error should not panic")
}

func TestEnforceFalsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("ENFORCE(false) did not panic")
		}
	}()
	ENFORCE(false, "must panic")
}

func TestEnforceErrorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("ENFORCE(err) did not panic")
		}
	}()
	ENFORCE(errors.New("boom"), "must panic")
}
