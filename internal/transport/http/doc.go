// Package http implements HTTP request handlers for the CallPulse web service.
// It provides a thin layer between HTTP transport and business logic, following
// the clean architecture principle of keeping handlers focused solely on HTTP concerns.
//
// # Architecture Principles
//
// Handlers in this package follow these principles:
//
//	1. Thin handlers - minimal logic, delegate to services
//	2. HTTP-only concerns - request parsing, response formatting
//	3. Error transformation - convert service errors to HTTP responses
//	4. No business logic - all logic belongs in the service layer
//	5. Consistent patterns - standardized request/response handling
//
// # Request Flow
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → Pipeline
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// # Handler Structure
//
// Each handler follows this pattern:
//
//	func (h *Handler) HandleSomething(w http.ResponseWriter, r *http.Request) {
//	    // 1. Parse and validate request
//	    req, err := parseRequest(r)
//	    if err != nil {
//	        h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
//	        return
//	    }
//
//	    // 2. Call service layer
//	    result, err := h.service.DoSomething(r.Context(), req)
//	    if err != nil {
//	        h.handleServiceError(w, r, err)
//	        return
//	    }
//
//	    // 3. Format and send response
//	    render.JSON(w, r, formatResponse(result))
//	}
//
// # Error Handling
//
// All errors follow RFC 7807 Problem Details specification:
//
//	{
//	    "type": "validation_error",
//	    "title": "Invalid request data",
//	    "status": 400,
//	    "detail": "The run ID format is invalid",
//	    "instance": "/api/analysis/runs/xyz"
//	}
//
// Service sentinel errors map onto stable HTTP codes: unknown datasets and
// runs become 404, artifacts requested before a run finishes become 409,
// and a full job queue becomes 503 so clients can retry with backoff.
//
// # Analysis Runs
//
// POST /api/analysis/run enqueues work and returns 202 Accepted with a run
// ID. Clients poll GET /api/analysis/runs/{id} or subscribe to the
// WebSocket hub for progress; KPI, correlation, insight, and quality
// artifacts hang off the run resource once the pipeline produces them.
//
// # Testing
//
// Handlers are tested using httptest:
//
//	- Mock service dependencies
//	- Test various HTTP scenarios
//	- Verify error responses
//	- Check middleware integration
package http
