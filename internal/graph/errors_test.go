package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyConstraintViolation(t *testing.T) {
	err := Classify("node.create", errors.New("Neo.ClientError.Schema.ConstraintValidationFailed: node already exists"))
	if KindOf(err) != KindConflict {
		t.Fatalf("constraint violation should classify as conflict, got %s", KindOf(err))
	}
}

func TestClassifyTransient(t *testing.T) {
	for _, raw := range []error{
		errors.New("connection refused"),
		context.DeadlineExceeded,
		context.Canceled,
	} {
		err := Classify("session.get", raw)
		if KindOf(err) != KindUnavailable {
			t.Fatalf("%v should classify as unavailable, got %s", raw, KindOf(err))
		}
	}
}

func TestClassifyPreservesStoreError(t *testing.T) {
	original := NotFound("node.get", errors.New("no rows"))
	wrapped := Classify("node.get", fmt.Errorf("outer: %w", original))
	if KindOf(wrapped) != KindNotFound {
		t.Fatalf("existing store error kind must survive classification, got %s", KindOf(wrapped))
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify("op", nil) != nil {
		t.Fatal("nil error must classify as nil")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NotFound("op", errors.New("no rows"))) {
		t.Fatal("IsNotFound must match a not-found store error")
	}
	if IsNotFound(Conflict("op", errors.New("dup"))) {
		t.Fatal("IsNotFound must not match a conflict")
	}
	if IsNotFound(errors.New("plain")) {
		t.Fatal("IsNotFound must not match a plain error")
	}
}

func TestStoreErrorMessage(t *testing.T) {
	err := Unavailable("message.create", errors.New("socket closed"))
	want := "message.create: unavailable: socket closed"
	if err.Error() != want {
		t.Fatalf("error text: want=%q got=%q", want, err.Error())
	}
}
