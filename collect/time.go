package collect

import "time"

// nowUTC is indirected so tests can pin "today" without depending on
// wall-clock time.
var nowUTC = func() time.Time { return time.Now().UTC() }
