package platforms

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"

	"nft-attribute-registry/internal/core/domain"
	"nft-attribute-registry/internal/core/ports/driven"
)

const (
	objectRecords  = "attribute-records"
	objectRegistry = "platform-registry"
	actionMutate   = "mutate"
	actionGovern   = "govern"
)

// ACL model definition for platform and governor membership
const registryModel = `[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act`

// CasbinPlatformRegistry implements driven.PlatformRegistry on a casbin
// enforcer persisted through the gorm adapter. Registered platforms hold the
// mutate permission on attribute records; the governing owner holds the
// govern permission on the registry itself.
type CasbinPlatformRegistry struct {
	enforcer *casbin.Enforcer
}

// NewCasbinPlatformRegistry creates the registry and seeds the governing
// owner's policy if it is not present yet.
func NewCasbinPlatformRegistry(db *gorm.DB, governor string) (*CasbinPlatformRegistry, error) {
	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", "platform_rules")
	if err != nil {
		return nil, fmt.Errorf("failed to create platform adapter: %v", err)
	}

	m, err := model.NewModelFromString(registryModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry model: %v", err)
	}

	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry enforcer: %v", err)
	}

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("failed to load registry policy: %v", err)
	}
	enforcer.EnableAutoSave(true)

	if _, err := enforcer.AddPolicy(governor, objectRegistry, actionGovern); err != nil {
		return nil, fmt.Errorf("failed to seed governor policy: %v", err)
	}

	return &CasbinPlatformRegistry{enforcer: enforcer}, nil
}

func (r *CasbinPlatformRegistry) requireGovernor(caller string) error {
	ok, err := r.enforcer.Enforce(caller, objectRegistry, actionGovern)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: caller %s is not the governing owner", domain.ErrUnauthorized, caller)
	}
	return nil
}

func (r *CasbinPlatformRegistry) Register(governor, platform string) error {
	if err := r.requireGovernor(governor); err != nil {
		return err
	}
	_, err := r.enforcer.AddPolicy(platform, objectRecords, actionMutate)
	return err
}

func (r *CasbinPlatformRegistry) Remove(governor, platform string) error {
	if err := r.requireGovernor(governor); err != nil {
		return err
	}
	_, err := r.enforcer.RemovePolicy(platform, objectRecords, actionMutate)
	return err
}

func (r *CasbinPlatformRegistry) IsRegistered(platform string) (bool, error) {
	return r.enforcer.Enforce(platform, objectRecords, actionMutate)
}

func (r *CasbinPlatformRegistry) IsGovernor(caller string) (bool, error) {
	return r.enforcer.Enforce(caller, objectRegistry, actionGovern)
}

func (r *CasbinPlatformRegistry) List() ([]string, error) {
	policies, err := r.enforcer.GetFilteredPolicy(1, objectRecords)
	if err != nil {
		return nil, err
	}

	platforms := make([]string, 0, len(policies))
	for _, p := range policies {
		if len(p) == 3 && p[2] == actionMutate {
			platforms = append(platforms, p[0])
		}
	}
	return platforms, nil
}

var _ driven.PlatformRegistry = (*CasbinPlatformRegistry)(nil)
