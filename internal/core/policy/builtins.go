package policy

import "regexp"

func re(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern)
}

// builtinAllowPrefixes lists known-safe command prefixes: test, build and
// lint runners plus read-only VCS inspection. A prefix match means the
// whole command is allowed without consulting the deny table, so entries
// here must not be shells for arbitrary arguments (no "cat", no "curl").
var builtinAllowPrefixes = []string{
	"npm test",
	"npm run",
	"npx jest",
	"npx vitest",
	"yarn test",
	"yarn run",
	"yarn lint",
	"yarn build",
	"pnpm test",
	"pnpm run",
	"go test",
	"go build",
	"go vet",
	"gofmt",
	"cargo build",
	"cargo test",
	"cargo check",
	"pytest",
	"make test",
	"make build",
	"make lint",
	"eslint",
	"prettier",
	"tsc",
	"git status",
	"git diff",
	"git log",
	"git show",
	// Only the listing form: a bare "git branch" prefix would also match
	// mutating forms like "git branch -D" and skip the deny table.
	"git branch --list",
}

// builtinDenyCommands lists destructive command shapes. First match wins
// and its reason is surfaced back to the agent.
var builtinDenyCommands = []rule{
	{re(`\brm\s+-[a-zA-Z]*[rR][a-zA-Z]*\s+("?/"?|/\*|~|~/|\$HOME)(\s|$)`), "recursive delete of the filesystem root or home directory"},
	{re(`\bdd\b.*\bof=/dev/(sd|hd|nvme|disk|vd)`), "direct write to a block device"},
	{re(`>\s*/dev/(sd|hd|nvme|vd)`), "direct write to a block device"},
	{re(`\bmkfs(\.[a-z0-9]+)?\b`), "filesystem format"},
	{re(`(?i)\bdrop\s+(table|database)\b`), "unconditional DROP on a database"},
	{re(`(?i)\btruncate\s+table\b`), "unconditional TRUNCATE on a database table"},
	{re(`(?i)\bdelete\s+from\s+\S+\s*(;|$)`), "DELETE without a WHERE clause"},
	{re(`^sudo\s`), "privilege escalation"},
	{re(`\bsudo\s+su\b|^su\s+-?\s*$`), "privilege escalation"},
	{re(`\bchmod\s+(-[a-zA-Z]+\s+)*(777|a\+rwx)\b`), "world-writable permission change"},
	{re(`\bgit\s+push\b.*(\s--force(\s|$)|\s-f(\s|$))`), "force push to a remote"},
	{re(`\bgit\s+reset\s+--hard\s+(origin|upstream)/`), "hard reset to a remote ref discards local commits"},
	{re(`(curl|wget)[^|;&]*\$[A-Za-z_]*(TOKEN|SECRET|KEY|PASSWORD|CREDENTIAL)`), "secret value interpolated into a network call"},
	{re(`\b(cat|head|tail|grep)\b[^|]*(\.env\b|id_rsa|\.ssh/|\.aws/credentials|\.netrc)[^|]*\|\s*(curl|wget|nc)\b`), "piping secret files to the network"},
	{re(`(curl|wget)[^|]*\|\s*(ba|z|da|fi)?sh\b`), "piping a remote download directly into a shell"},
}

// builtinWarnCommands lists operations that are allowed but worth flagging
// in the progress feed.
var builtinWarnCommands = []rule{
	{re(`\bgit\s+push\b`), "pushes to a remote"},
	{re(`\bnpm\s+(install|i)\s+(-g|--global)\b`), "global package install"},
	{re(`\b(apt-get|apt|brew|dnf|yum)\s+install\b`), "system package install"},
	{re(`\bpip3?\s+install\b`), "package install"},
	{re(`\b(docker|podman|kubectl)\b`), "container or cluster command"},
	{re(`\b(curl|wget|nc|ping)\b`), "network call"},
}

// builtinProtectedPaths deny edits to secrets, credentials, VCS internals
// and dependency lockfiles. Patterns match the slash-separated path
// relative to the repository root.
var builtinProtectedPaths = []rule{
	{re(`(^|/)\.env(\.[A-Za-z0-9._-]+)?$`), "environment files may contain secrets"},
	{re(`(^|/)(credentials|secrets?)(\.(json|ya?ml|toml|txt))?$`), "credential file"},
	{re(`(^|/)\.netrc$`), "credential file"},
	{re(`(^|/)\.npmrc$`), "registry credential file"},
	{re(`(^|/)\.aws/`), "cloud credential directory"},
	{re(`(^|/)id_(rsa|dsa|ecdsa|ed25519)$`), "private key"},
	{re(`\.(pem|key|p12|pfx)$`), "private key material"},
	{re(`(^|/)\.git(/|$)`), "version control internals"},
	{re(`(^|/)(package-lock\.json|yarn\.lock|pnpm-lock\.yaml|go\.sum|Cargo\.lock|Gemfile\.lock|poetry\.lock|composer\.lock)$`), "dependency lockfile is generated, not edited"},
}

// builtinSensitivePaths allow edits but attach a warning: these files are
// legitimate targets yet routinely break builds or pipelines when touched.
var builtinSensitivePaths = []rule{
	{re(`(^|/)(package\.json|go\.mod|Cargo\.toml|Gemfile|pyproject\.toml|composer\.json)$`), "dependency manifest"},
	{re(`(^|/)\.github/workflows/[^/]+\.ya?ml$`), "CI workflow definition"},
	{re(`(^|/)(\.gitlab-ci\.yml|Jenkinsfile|\.circleci/config\.yml)$`), "CI pipeline definition"},
	{re(`(^|/)(Dockerfile|docker-compose\.ya?ml)$`), "container build configuration"},
	{re(`(^|/)(next|vite|webpack|babel|rollup|jest|vitest|tailwind|postcss)\.config\.(js|cjs|mjs|ts)$`), "framework configuration"},
	{re(`(^|/)tsconfig(\.[A-Za-z0-9._-]+)?\.json$`), "compiler configuration"},
}
