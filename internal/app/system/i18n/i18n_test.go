package i18n_test

import (
	"testing"

	"github.com/dalemusser/classhub/internal/app/system/i18n"
)

func TestDefaultIsSpanish(t *testing.T) {
	got := i18n.Default().T("courses.not_found")
	if got != "Curso no encontrado" {
		t.Errorf("T = %q", got)
	}
}

func TestFor_AcceptLanguage(t *testing.T) {
	tr := i18n.Default().For("en-US,en;q=0.9")
	if got := tr.T("courses.not_found"); got != "Course not found" {
		t.Errorf("T = %q, want English", got)
	}

	tr = i18n.Default().For("fr-FR")
	if got := tr.T("courses.not_found"); got != "Curso no encontrado" {
		t.Errorf("unmatched language should fall back to Spanish, got %q", got)
	}
}

func TestTf(t *testing.T) {
	tr, err := i18n.New("en")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got := tr.Tf("auth.unknown", map[string]any{"Code": "quota-exceeded", "Message": "slow down"})
	if got != "Operation failed: quota-exceeded/slow down" {
		t.Errorf("Tf = %q", got)
	}
}

func TestUnknownID(t *testing.T) {
	if got := i18n.Default().T("no.such.message"); got != "no.such.message" {
		t.Errorf("T = %q, want the id back", got)
	}
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	es, _ := i18n.New("es")
	en, _ := i18n.New("en")
	ids := []string{
		"auth.email_already_in_use", "auth.weak_password", "auth.invalid_email",
		"auth.operation_not_allowed", "auth.user_not_found", "auth.wrong_password",
		"auth.user_disabled", "auth.too_many_requests", "auth.network_request_failed",
		"auth.api_key_not_valid", "auth.unavailable", "store.permission_denied",
		"store.unavailable", "courses.not_found", "courses.already_enrolled",
		"http.not_found",
	}
	for _, id := range ids {
		if es.T(id) == id {
			t.Errorf("es catalog missing %s", id)
		}
		if en.T(id) == id {
			t.Errorf("en catalog missing %s", id)
		}
		if es.T(id) == en.T(id) {
			t.Errorf("%s is not translated", id)
		}
	}
}
