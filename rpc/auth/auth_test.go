package auth

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify(t *testing.T) {
	a := NewAuthority([]byte("secret"), time.Hour)
	token, err := a.Issue(Session{AccountID: "acc", SystemID: "sys", Role: "admin"})
	require.NoError(t, err)

	s, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "acc", s.AccountID)
	assert.Equal(t, "sys", s.SystemID)
	assert.Equal(t, "admin", s.Role)
	assert.Equal(t, token, s.Token)

	other := NewAuthority([]byte("other"), time.Hour)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, errs.ErrAuth)

	_, err = a.Verify("not-a-token")
	assert.ErrorIs(t, err, errs.ErrAuth)
}

func TestExpired(t *testing.T) {
	a := NewAuthority([]byte("secret"), -time.Minute)
	token, err := a.Issue(Session{AccountID: "acc"})
	require.NoError(t, err)
	_, err = a.Verify(token)
	assert.ErrorIs(t, err, errs.ErrAuth)
	assert.Contains(t, err.Error(), "expired")
}

func TestCheck(t *testing.T) {
	account := &Session{AccountID: "acc"}
	viewer := &Session{AccountID: "acc", SystemID: "sys", Role: "viewer"}
	admin := &Session{AccountID: "acc", SystemID: "sys", Role: "admin"}
	support := &Session{AccountID: "sup", SystemID: "sys", Support: true}

	cases := []struct {
		s   *Session
		req Requirement
		ok  bool
	}{
		{nil, None, true},
		{nil, Any, false},
		{account, Any, true},
		{account, Account, true},
		{account, System, false},
		{viewer, System, true},
		{viewer, SystemAdmin, false},
		{admin, SystemAdmin, true},
		{support, SystemAdmin, true},
		{&Session{AccountID: "acc", SystemID: "sys"}, System, false},
		{&Session{}, Any, false},
	}
	for _, c := range cases {
		err := Check(c.s, c.req)
		if c.ok {
			assert.NoError(t, err, "%+v %s", c.s, c.req)
		} else {
			assert.ErrorIs(t, err, errs.ErrAuth, "%+v %s", c.s, c.req)
		}
	}
}

func TestAuthorize(t *testing.T) {
	a := NewAuthority([]byte("secret"), 0)
	token, err := a.Issue(Session{SystemID: "sys", Role: "admin"})
	require.NoError(t, err)

	s, err := a.Authorize(token, SystemAdmin)
	require.NoError(t, err)
	assert.Equal(t, "sys", s.SystemID)

	s, err = a.Authorize("garbage", None)
	assert.NoError(t, err)
	assert.Nil(t, s)

	_, err = a.Authorize("", Account)
	assert.ErrorIs(t, err, errs.ErrAuth)

	ctx := WithSession(context.Background(), &Session{AccountID: "x"})
	assert.Equal(t, "x", FromContext(ctx).AccountID)
	assert.Nil(t, FromContext(context.Background()))
}

type roleTable map[string]string

func (r roleTable) ResolveRole(account, system string) (string, error) {
	if system == "down" {
		return "", errs.New(errs.NotReady, "roles", "not loaded")
	}
	return r[account+"/"+system], nil
}

func TestAuthorizeResolvesRole(t *testing.T) {
	roles := roleTable{"acc/sys": "admin"}
	a := NewAuthority([]byte("secret"), 0)
	a.SetRoleResolver(roles)

	token, err := a.Issue(Session{AccountID: "acc", SystemID: "sys", Role: "admin"})
	require.NoError(t, err)
	_, err = a.Authorize(token, SystemAdmin)
	require.NoError(t, err)

	roles["acc/sys"] = "viewer"
	s, err := a.Authorize(token, System)
	require.NoError(t, err)
	assert.Equal(t, "viewer", s.Role)
	_, err = a.Authorize(token, SystemAdmin)
	assert.ErrorIs(t, err, errs.ErrAuth)

	delete(roles, "acc/sys")
	_, err = a.Authorize(token, System)
	assert.ErrorIs(t, err, errs.ErrAuth)

	// system tokens keep their claimed role
	systemOnly, err := a.Issue(Session{SystemID: "sys", Role: "admin"})
	require.NoError(t, err)
	_, err = a.Authorize(systemOnly, SystemAdmin)
	assert.NoError(t, err)

	down, err := a.Issue(Session{AccountID: "acc", SystemID: "down", Role: "admin"})
	require.NoError(t, err)
	_, err = a.Authorize(down, SystemAdmin)
	assert.ErrorIs(t, err, errs.ErrNotReady)
	s, err = a.Authorize(down, None)
	assert.NoError(t, err)
	assert.Nil(t, s)
}
