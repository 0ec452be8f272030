package capability

import "testing"

type helloRequest struct {
	Name string `json:"name"`
}

type helloResponse struct {
	Greeting string `json:"greeting"`
}

type pingPayload struct {
	Sequence int `json:"sequence"`
}

func TestBuilderBuildsCapability(t *testing.T) {
	c, err := NewBuilder("Greeter").
		Operation("say_hello_to_name", helloRequest{}, helloResponse{}, func(req interface{}) (interface{}, error) {
			r := req.(helloRequest)
			return helloResponse{Greeting: "Hello, " + r.Name + "!"}, nil
		}).
		Event("ping", pingPayload{}).
		Status(helloResponse{}, func() (interface{}, error) { return helloResponse{Greeting: "ok"}, nil }).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(c.Operations) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(c.Operations))
	}
	if c.Status == nil {
		t.Fatal("expected status descriptor")
	}
}

func TestBuilderRejectsDuplicateOperationName(t *testing.T) {
	_, err := NewBuilder("Greeter").
		Operation("say_hello", helloRequest{}, helloResponse{}, func(interface{}) (interface{}, error) { return nil, nil }).
		Operation("say_hello", helloRequest{}, helloResponse{}, func(interface{}) (interface{}, error) { return nil, nil }).
		Build()
	if err == nil {
		t.Fatal("expected SchemaBuildError for duplicate operation name")
	}
	if _, ok := err.(*SchemaBuildError); !ok {
		t.Fatalf("expected *SchemaBuildError, got %T", err)
	}
}

func TestBuilderRejectsBareScalarEvent(t *testing.T) {
	_, err := NewBuilder("Greeter").
		Operation("say_hello", helloRequest{}, helloResponse{}, func(interface{}) (interface{}, error) { return nil, nil }).
		Event("ping", "not-a-struct").
		Build()
	if err == nil {
		t.Fatal("expected SchemaBuildError for bare scalar event payload")
	}
}

func TestBuilderRejectsSecondStatusMethod(t *testing.T) {
	_, err := NewBuilder("Greeter").
		Operation("say_hello", helloRequest{}, helloResponse{}, func(interface{}) (interface{}, error) { return nil, nil }).
		Status(helloResponse{}, func() (interface{}, error) { return nil, nil }).
		Status(helloResponse{}, func() (interface{}, error) { return nil, nil }).
		Build()
	if err == nil {
		t.Fatal("expected SchemaBuildError for duplicate status method")
	}
}

func TestBuilderRejectsUndeclaredEventReference(t *testing.T) {
	_, err := NewBuilder("Greeter").
		Operation("say_hello", helloRequest{}, helloResponse{}, func(interface{}) (interface{}, error) { return nil, nil }).
		EventsEmitted("say_hello", "ping").
		Build()
	if err == nil {
		t.Fatal("expected SchemaBuildError for operation referencing an undeclared event")
	}
	if _, ok := err.(*SchemaBuildError); !ok {
		t.Fatalf("expected *SchemaBuildError, got %T", err)
	}
}

func TestBuilderAcceptsDeclaredEventReference(t *testing.T) {
	c, err := NewBuilder("Greeter").
		Operation("say_hello", helloRequest{}, helloResponse{}, func(interface{}) (interface{}, error) { return nil, nil }).
		Event("ping", pingPayload{}).
		EventsEmitted("say_hello", "ping").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	names := c.EventNamesFor("say_hello")
	if _, ok := names["ping"]; !ok {
		t.Fatal("expected say_hello's events_emitted to include ping")
	}
}

func TestBuildDocumentCompiles(t *testing.T) {
	c, err := NewBuilder("Greeter").
		Operation("say_hello_to_name", helloRequest{}, helloResponse{}, func(interface{}) (interface{}, error) { return nil, nil }).
		Event("ping", pingPayload{}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	doc, err := BuildDocument(c)
	if err != nil {
		t.Fatalf("BuildDocument: %v", err)
	}
	if _, ok := doc.Operations["say_hello_to_name"]; !ok {
		t.Fatal("expected operation in document")
	}
	if _, ok := doc.Events["ping"]; !ok {
		t.Fatal("expected event in document")
	}
}
