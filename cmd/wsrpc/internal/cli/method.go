package cli

import "github.com/selimaj-dev/session-go/rpc"

// dataMethod mirrors the literal "Text echo" / "Error reply" scenarios: a
// plain string request, a plain string response, and a plain string error
// message.
var dataMethod = rpc.NewMethod[string, string, string]("data")
