package capability

import (
	"reflect"
	"testing"
)

func TestCompiledValidatorStrictRejectsUnknownField(t *testing.T) {
	v, err := Compile(reflectSchema(reflect.TypeOf(helloRequest{})), true)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := v.Validate([]byte(`{"name":"world","extra":1}`)); err == nil {
		t.Fatal("expected strict validation to reject unknown field")
	}
}

func TestCompiledValidatorAcceptsValidPayload(t *testing.T) {
	v, err := Compile(reflectSchema(reflect.TypeOf(helloRequest{})), true)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := v.Validate([]byte(`{"name":"world"}`)); err != nil {
		t.Fatalf("expected valid payload to pass, got %v", err)
	}
}

func TestCompiledValidatorNonStrictAllowsUnknownField(t *testing.T) {
	v, err := Compile(reflectSchema(reflect.TypeOf(helloRequest{})), false)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := v.Validate([]byte(`{"name":"world","extra":1}`)); err != nil {
		t.Fatalf("expected non-strict validation to allow unknown field, got %v", err)
	}
}
