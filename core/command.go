package core

// Command is one of the five credential operations a tenant can invoke.
type Command int

const (
	CommandGetAuth Command = iota + 1
	CommandCreateAuth
	CommandSetPassword
	CommandSetPrivileges
	CommandRecordLogin
)

// Commands lists every command in route registration order.
var Commands = []Command{
	CommandGetAuth,
	CommandCreateAuth,
	CommandSetPassword,
	CommandSetPrivileges,
	CommandRecordLogin,
}

var commandPaths = map[Command]string{
	CommandGetAuth:       "/v1/get_auth",
	CommandCreateAuth:    "/v1/create_auth",
	CommandSetPassword:   "/v1/set_password",
	CommandSetPrivileges: "/v1/set_privileges",
	CommandRecordLogin:   "/v1/record_login",
}

var commandNames = map[Command]string{
	CommandGetAuth:       "get_auth",
	CommandCreateAuth:    "create_auth",
	CommandSetPassword:   "set_password",
	CommandSetPrivileges: "set_privileges",
	CommandRecordLogin:   "record_login",
}

// Path is the exact request path the command is served on.
func (c Command) Path() string {
	return commandPaths[c]
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCommand maps a request path to its command. Matching is exact, so
// prefixes and trailing slashes miss.
func ParseCommand(path string) (Command, bool) {
	for _, c := range Commands {
		if c.Path() == path {
			return c, true
		}
	}
	return 0, false
}
