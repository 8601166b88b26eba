package retrieval

import _ "embed"

// embeddedEmployees is the built-in demo directory, used when no
// EMPLOYEE_DATA_PATH override is configured.
//
//go:embed data/employees.json
var embeddedEmployees []byte
