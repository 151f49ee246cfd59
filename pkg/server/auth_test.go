package server

import (
	"testing"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

func TestPasswordRoundTrip(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, _ := connectPlayer(t, g, "Alice", plaza)

	if err := SetPassword(g.DB, alice, "s3cret"); err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(g.DB, alice, "s3cret") {
		t.Error("correct password rejected")
	}
	if CheckPassword(g.DB, alice, "wrong") {
		t.Error("wrong password accepted")
	}
	if CheckPassword(g.DB, alice, "") {
		t.Error("empty password accepted")
	}
}

func TestPasswordAttrIsProtected(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, _ := connectPlayer(t, g, "Alice", plaza)
	SetPassword(g.DB, alice, "s3cret")

	obj := g.DB.Get(alice)
	a, ok := obj.GetAttr(AttrPassword)
	if !ok {
		t.Fatal("password attribute missing")
	}
	if a.Flags&gamedb.AFPrivate == 0 || a.Flags&gamedb.AFLock == 0 {
		t.Errorf("password attribute flags = %#x, want private and locked", a.Flags)
	}
	if a.Value == "s3cret" {
		t.Error("password stored in the clear")
	}
}

func TestJWTLoginAndValidate(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, _ := connectPlayer(t, g, "Alice", plaza)
	SetPassword(g.DB, alice, "s3cret")
	auth := NewAuthService(g, "test-secret", 3600)

	token, err := auth.Login("Alice", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.PlayerRef != alice || claims.PlayerName != "Alice" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := auth.Login("Alice", "wrong"); err == nil {
		t.Error("bad password produced a token")
	}
	if _, err := auth.Login("Nobody", "s3cret"); err == nil {
		t.Error("unknown player produced a token")
	}
	if _, err := auth.ValidateToken("not.a.token"); err == nil {
		t.Error("garbage token validated")
	}
}

func TestJWTRefresh(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, _ := connectPlayer(t, g, "Alice", plaza)
	SetPassword(g.DB, alice, "s3cret")
	auth := NewAuthService(g, "test-secret", 3600)

	token, err := auth.Login("Alice", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := auth.RefreshToken(token)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := auth.ValidateToken(fresh)
	if err != nil {
		t.Fatal(err)
	}
	if claims.PlayerRef != alice {
		t.Errorf("refreshed claims for #%d, want #%d", claims.PlayerRef, alice)
	}
}

func TestTokensAreSecretBound(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, _ := connectPlayer(t, g, "Alice", plaza)
	SetPassword(g.DB, alice, "s3cret")

	a1 := NewAuthService(g, "secret-one", 3600)
	a2 := NewAuthService(g, "secret-two", 3600)
	token, err := a1.Login("Alice", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a2.ValidateToken(token); err == nil {
		t.Error("token signed with one secret validated under another")
	}
}
