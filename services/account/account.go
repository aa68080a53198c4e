package account

import (
	"context"
	"sort"
	"strings"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/crypto/bcrypt"
)

var log = logger.GetLogger("account")

// Service implements api.AccountService on the config store
type Service struct {
	store     *confstore.Store
	authority *auth.Authority
	cost      int
}

// New creates the account service. cost is the bcrypt cost, 0 uses bcrypt.DefaultCost.
func New(store *confstore.Store, authority *auth.Authority, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: store, authority: authority, cost: cost}
}

// CreateAccount creates an account with the admin role on a system. With
// new_system_parameters the system is the one just provisioned and the
// account id is the one reserved for it, otherwise the caller must be an
// admin of the system the account is added to.
func (s *Service) CreateAccount(ctx context.Context, p *api.CreateAccountParams) (*api.TokenReply, error) {
	const op = "account.create_account"

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), s.cost)
	if err != nil {
		return nil, errs.New(errs.Validation, op, "password: %v", err)
	}

	acc := &model.Account{
		Name:           p.Name,
		Email:          strings.ToLower(p.Email),
		Password:       string(hash),
		AccessKeys:     p.AccessKeys,
		AllowedBuckets: p.AllowedBuckets,
	}
	var systemID string
	if nsp := p.NewSystemParameters; nsp != nil {
		acc.ID = nsp.AccountID
		acc.AllowedBuckets = nsp.AllowedBuckets
		systemID = nsp.NewSystemID
		d, err := s.store.Data()
		if err != nil {
			return nil, err
		}
		sys, ok := d.System(systemID)
		if !ok {
			return nil, errs.New(errs.NotFound, op, "no such system %s", systemID)
		}
		if sys.Owner != acc.ID {
			return nil, errs.New(errs.Auth, op, "account %s is not the owner of system %s", acc.ID, systemID)
		}
	} else {
		session := auth.FromContext(ctx)
		if err := auth.Check(session, auth.SystemAdmin); err != nil {
			return nil, err
		}
		acc.ID = s.store.GenerateID()
		systemID = session.SystemID
	}

	role := &model.Role{ID: s.store.GenerateID(), Account: acc.ID, System: systemID, Role: model.RoleAdmin}
	if _, err := s.store.MakeChanges(ctx, confstore.Changes{Insert: map[model.Collection][]model.Document{
		model.Accounts: {acc},
		model.Roles:    {role},
	}}); err != nil {
		return nil, err
	}
	log.Infof("created account %s (%s) on system %s", acc.Email, acc.ID, systemID)

	token, err := s.authority.Issue(auth.Session{AccountID: acc.ID, SystemID: systemID, Role: model.RoleAdmin})
	if err != nil {
		return nil, errs.Wrap(errs.Internal, op, err)
	}
	return &api.TokenReply{Token: token}, nil
}

// ListAccounts lists every account for support, the accounts having a role
// on the calling system otherwise
func (s *Service) ListAccounts(ctx context.Context, _ *api.Empty) (*api.AccountList, error) {
	d, err := s.store.Data()
	if err != nil {
		return nil, err
	}
	session := auth.FromContext(ctx)
	reply := &api.AccountList{Accounts: []api.AccountInfo{}}
	for _, a := range d.Accounts() {
		if visible(d, session, a) {
			reply.Accounts = append(reply.Accounts, Info(d, a))
		}
	}
	return reply, nil
}

// ReadAccount returns one account visible to the caller
func (s *Service) ReadAccount(ctx context.Context, p *api.AccountEmail) (*api.AccountInfo, error) {
	d, err := s.store.Data()
	if err != nil {
		return nil, err
	}
	a, ok := d.AccountByEmail(p.Email)
	if !ok || !visible(d, auth.FromContext(ctx), a) {
		return nil, errs.New(errs.NotFound, "account.read_account", "no such account email: %s", p.Email)
	}
	info := Info(d, a)
	return &info, nil
}

// CreateAuth verifies email and password and issues a token, bound to the
// named system when one is given
func (s *Service) CreateAuth(ctx context.Context, p *api.CreateAuthParams) (*api.TokenReply, error) {
	const op = "account.create_auth"
	d, err := s.store.Data()
	if err != nil {
		return nil, err
	}
	a, ok := d.AccountByEmail(p.Email)
	if !ok || bcrypt.CompareHashAndPassword([]byte(a.Password), []byte(p.Password)) != nil {
		return nil, errs.New(errs.Auth, op, "invalid email or password")
	}

	session := auth.Session{AccountID: a.ID, Support: a.IsSupport}
	if p.System != "" {
		sys, ok := d.SystemByName(p.System)
		if !ok {
			return nil, errs.New(errs.NotFound, op, "no such system %s", p.System)
		}
		session.SystemID = sys.ID
		session.Role = d.RoleOf(a.ID, sys.ID)
		if session.Role == "" && !a.IsSupport {
			return nil, errs.New(errs.Auth, op, "account has no role on system %s", p.System)
		}
	}
	token, err := s.authority.Issue(session)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, op, err)
	}
	return &api.TokenReply{Token: token}, nil
}

// --------------------------------------------------------------------------
// Projections
// --------------------------------------------------------------------------

// Info projects an account for replies, never including credentials
func Info(d *confstore.Data, a *model.Account) api.AccountInfo {
	info := api.AccountInfo{
		Name:           a.Name,
		Email:          a.Email,
		IsSupport:      a.IsSupport,
		AllowedBuckets: a.AllowedBuckets,
	}
	bySystem := map[string][]string{}
	for _, r := range d.RolesByAccount(a.ID) {
		bySystem[r.System] = append(bySystem[r.System], r.Role)
	}
	for id, roles := range bySystem {
		sys, ok := d.System(id)
		if !ok {
			continue
		}
		sort.Strings(roles)
		info.Systems = append(info.Systems, api.AccountSystemRoles{Name: sys.Name, Roles: roles})
	}
	sort.Slice(info.Systems, func(i, j int) bool { return info.Systems[i].Name < info.Systems[j].Name })
	return info
}

func visible(d *confstore.Data, s *auth.Session, a *model.Account) bool {
	switch {
	case s == nil:
		return false
	case s.Support, s.AccountID == a.ID:
		return true
	case s.SystemID != "":
		for _, r := range d.RolesByAccount(a.ID) {
			if r.System == s.SystemID {
				return true
			}
		}
	}
	return false
}
