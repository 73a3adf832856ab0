package flows

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
)

var errNotReady = errors.New("not ready")

func TestRunWithoutCollaboratorsReportsNotReady(t *testing.T) {
	deps := Deps{Errors: Errors{EngineNotReady: errNotReady}}

	if _, err := RunLogin(context.Background(), "a@b.c", "pw", "", deps); !errors.Is(err, errNotReady) {
		t.Fatalf("RunLogin: expected not ready, got %v", err)
	}
	if _, err := RunRefresh(context.Background(), "tok", deps); !errors.Is(err, errNotReady) {
		t.Fatalf("RunRefresh: expected not ready, got %v", err)
	}
	if err := RunLogout(context.Background(), "sid", deps); !errors.Is(err, errNotReady) {
		t.Fatalf("RunLogout: expected not ready, got %v", err)
	}
	if New(deps).Initialized() {
		t.Fatal("expected uninitialized service")
	}
}

func TestBuildLinkPutsCodeFirst(t *testing.T) {
	link := buildLink("https://app.example.com/", "/reset-password", url.Values{
		"exp":  {"1700000000000"},
		"code": {"abc123"},
	})
	if link != "https://app.example.com/reset-password?code=abc123&exp=1700000000000" {
		t.Fatalf("unexpected link %q", link)
	}

	link = buildLink("http://localhost:3000", "/confirm-account", url.Values{"code": {"a b"}})
	if !strings.HasSuffix(link, "?code=a+b") {
		t.Fatalf("expected escaped code, got %q", link)
	}
}

func TestSameSecretIgnoresFormatting(t *testing.T) {
	if !sameSecret("jbsw y3dp ehpk 3pxp", "JBSWY3DPEHPK3PXP====") {
		t.Fatal("expected equal secrets")
	}
	if sameSecret("JBSWY3DPEHPK3PXP", "JBSWY3DPEHPK3PXQ") {
		t.Fatal("expected different secrets")
	}
}

func TestCheckPasswordPolicy(t *testing.T) {
	deps := Deps{Policy: PasswordPolicy{MinLength: 6, MaxLength: 10}}
	deps.normalize()

	cases := map[string]string{
		"":             "Password is required",
		"short":        "Password must be at least 6 characters long",
		"much-longer!": "Password must be at most 10 characters long",
	}
	for pw, want := range cases {
		err := deps.checkPassword("password", pw)
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("checkPassword(%q) = %v, want %q", pw, err, want)
		}
	}
	if err := deps.checkPassword("password", "just-ok"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
