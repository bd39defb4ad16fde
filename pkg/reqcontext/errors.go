package reqcontext

import "errors"

// errNoDispatcher is returned by RequestContext.Request when the context
// was built without a back-channel to the owning connection (e.g. a
// context built for a notification, or a unit test harness).
var errNoDispatcher = errors.New("reqcontext: no dispatcher attached to this request context")
