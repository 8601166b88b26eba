package dataset

import _ "embed"

//go:embed data/golden_hr.json
var embeddedGolden []byte
