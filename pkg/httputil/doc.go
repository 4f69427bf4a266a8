// Package httputil provides the middleware wrapped around the ops HTTP
// routes: request ids, structured request logging and panic recovery.
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)(router)
package httputil
