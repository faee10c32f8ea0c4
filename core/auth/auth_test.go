package auth

import "testing"

func TestTokenRoundTrip(t *testing.T) {
	SetSecret("test-secret")

	token, err := GenerateToken("1234", "p1", RolePlayer)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.GameID != "1234" || claims.PlayerID != "p1" || claims.Role != RolePlayer {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestTokenHostHasNoPlayer(t *testing.T) {
	SetSecret("test-secret")

	token, err := GenerateToken("1234", "", RoleHost)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Role != RoleHost || claims.PlayerID != "" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	SetSecret("test-secret")
	if _, err := ParseToken("not-a-token"); err == nil {
		t.Error("garbage token should be rejected")
	}

	SetSecret("other-secret")
	token, _ := GenerateToken("1234", "p1", RolePlayer)
	SetSecret("test-secret")
	if _, err := ParseToken(token); err == nil {
		t.Error("token signed with a different secret should be rejected")
	}
}
