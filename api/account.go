package api

import (
	"context"

	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/ValentinKolb/dCtl/rpc/server"
)

// Account methods
const (
	MethodCreateAccount = "create_account"
	MethodListAccounts  = "list_accounts"
	MethodReadAccount   = "read_account"
	MethodCreateAuth    = "create_auth"
)

// NewSystemParameters binds a new account to the system created for it
type NewSystemParameters struct {
	AccountID      string   `json:"account_id"`
	AllowedBuckets []string `json:"allowed_buckets"`
	NewSystemID    string   `json:"new_system_id"`
}

// CreateAccountParams creates an account. With NewSystemParameters the
// account becomes the admin of that system and needs no token.
type CreateAccountParams struct {
	Name                string               `json:"name"`
	Email               string               `json:"email"`
	Password            string               `json:"password"`
	AccessKeys          []model.AccessKey    `json:"access_keys,omitempty"`
	AllowedBuckets      []string             `json:"allowed_buckets,omitempty"`
	NewSystemParameters *NewSystemParameters `json:"new_system_parameters,omitempty"`
}

// AccountEmail selects an account
type AccountEmail struct {
	Email string `json:"email"`
}

// AccountSystemRoles lists the roles of an account on one system
type AccountSystemRoles struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// AccountInfo is the public view of an account
type AccountInfo struct {
	Name           string               `json:"name"`
	Email          string               `json:"email"`
	IsSupport      bool                 `json:"is_support,omitempty"`
	AllowedBuckets []string             `json:"allowed_buckets,omitempty"`
	Systems        []AccountSystemRoles `json:"systems,omitempty"`
}

type AccountList struct {
	Accounts []AccountInfo `json:"accounts"`
}

// CreateAuthParams authenticates with email and password. System selects
// the system the token is bound to, empty binds the account only.
type CreateAuthParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	System   string `json:"system,omitempty"`
}

// AccountService manages accounts and issues session tokens
type AccountService interface {
	CreateAccount(ctx context.Context, p *CreateAccountParams) (*TokenReply, error)
	ListAccounts(ctx context.Context, p *Empty) (*AccountList, error)
	ReadAccount(ctx context.Context, p *AccountEmail) (*AccountInfo, error)
	CreateAuth(ctx context.Context, p *CreateAuthParams) (*TokenReply, error)
}

// NewAccountServiceDesc binds impl to the account service
func NewAccountServiceDesc(impl AccountService) server.ServiceDesc {
	return server.ServiceDesc{
		Name: ServiceAccount,
		Methods: []server.MethodDesc{
			// the handler demands system:admin unless new_system_parameters are given
			method(MethodCreateAccount, auth.None, impl.CreateAccount),
			method(MethodListAccounts, auth.Any, impl.ListAccounts),
			method(MethodReadAccount, auth.Any, impl.ReadAccount),
			method(MethodCreateAuth, auth.None, impl.CreateAuth),
		},
	}
}

// AccountClient is the typed client of the account service
type AccountClient struct {
	c *client.Client
}

// NewAccountClient wraps c
func NewAccountClient(c *client.Client) *AccountClient {
	return &AccountClient{c: c}
}

func (a *AccountClient) CreateAccount(ctx context.Context, params *CreateAccountParams, opts ...client.CallOption) (*TokenReply, error) {
	return call[*TokenReply](ctx, a.c, ServiceAccount, MethodCreateAccount, params, opts)
}

func (a *AccountClient) ListAccounts(ctx context.Context, opts ...client.CallOption) (*AccountList, error) {
	return call[*AccountList](ctx, a.c, ServiceAccount, MethodListAccounts, nil, opts)
}

func (a *AccountClient) ReadAccount(ctx context.Context, email string, opts ...client.CallOption) (*AccountInfo, error) {
	return call[*AccountInfo](ctx, a.c, ServiceAccount, MethodReadAccount, &AccountEmail{Email: email}, opts)
}

func (a *AccountClient) CreateAuth(ctx context.Context, params *CreateAuthParams, opts ...client.CallOption) (*TokenReply, error) {
	return call[*TokenReply](ctx, a.c, ServiceAccount, MethodCreateAuth, params, opts)
}
