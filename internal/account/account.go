package account

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	pserrors "github.com/jthorburn/photosync/internal/errors"
)

// UploadPolicy controls which local assets an account auto-uploads and
// how the resulting jobs are classified.
type UploadPolicy struct {
	// Enabled guards the whole auto-upload feature for the account.
	Enabled bool `yaml:"enabled"`

	// Image and Video select which media types are eligible.
	Image bool `yaml:"image"`
	Video bool `yaml:"video"`

	// WiFiOnlyImage and WiFiOnlyVideo restrict the respective media type
	// to the Wi-Fi-only transfer session.
	WiFiOnlyImage bool `yaml:"wifi_only_image"`
	WiFiOnlyVideo bool `yaml:"wifi_only_video"`

	// CreateSubfolders places uploads under <dir>/<year>/<month>.
	CreateSubfolders bool `yaml:"create_subfolders"`

	// Directory is the remote destination root for auto-uploads,
	// relative to the account's base URL.
	Directory string `yaml:"directory"`

	// LivePhoto marks paired live-photo assets so the scheduler uploads
	// the companion movie under the same job.
	LivePhoto bool `yaml:"live_photo"`
}

// Context identifies one configured account. It is passed explicitly
// into every reconciler call; there is no process-wide active account.
type Context struct {
	// Name is the unique account identifier, e.g. "anna@cloud.example.com".
	Name string `yaml:"name"`

	// BaseURL is the root of the account's remote file store.
	BaseURL string `yaml:"base_url"`

	Policy UploadPolicy `yaml:"policy"`
}

// UploadRoot returns the absolute remote path auto-uploads are rooted at.
func (c *Context) UploadRoot() string {
	dir := strings.Trim(c.Policy.Directory, "/")
	if dir == "" {
		dir = "Photos"
	}

	return strings.TrimRight(c.BaseURL, "/") + "/" + dir
}

type accountsFile struct {
	Accounts []Context `yaml:"accounts"`
}

// Registry holds the configured accounts, keyed by name.
type Registry struct {
	accounts map[string]Context
	order    []string
}

// LoadRegistry parses the accounts YAML file at path.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading accounts file: %w", err)
	}

	return ParseRegistry(data)
}

// ParseRegistry parses accounts YAML content.
func ParseRegistry(data []byte) (*Registry, error) {
	var f accountsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing accounts file: %w", err)
	}

	r := &Registry{accounts: make(map[string]Context, len(f.Accounts))}

	for _, acct := range f.Accounts {
		if acct.Name == "" {
			return nil, fmt.Errorf("account with empty name in accounts file")
		}

		if acct.BaseURL == "" {
			return nil, fmt.Errorf("account %q has no base_url", acct.Name)
		}

		if _, dup := r.accounts[acct.Name]; dup {
			return nil, fmt.Errorf("duplicate account %q in accounts file", acct.Name)
		}

		r.accounts[acct.Name] = acct
		r.order = append(r.order, acct.Name)
	}

	return r, nil
}

// Get returns the account context by name.
func (r *Registry) Get(name string) (Context, error) {
	acct, ok := r.accounts[name]
	if !ok {
		return Context{}, fmt.Errorf("%w: %s", pserrors.ErrAccountNotFound, name)
	}

	return acct, nil
}

// All returns the accounts in file order.
func (r *Registry) All() []Context {
	out := make([]Context, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.accounts[name])
	}

	return out
}
