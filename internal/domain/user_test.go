package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestUserJSONOmitsPasswordDigest(t *testing.T) {
	u := User{ID: "u-1", Name: "A", Email: "a@x.com", PasswordDigest: "deadbeef"}
	raw, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "deadbeef") || strings.Contains(string(raw), "password") {
		t.Fatalf("digest leaked into JSON: %s", raw)
	}
}
