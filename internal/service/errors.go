package service

import "todaride/internal/domain"

var (
	// ErrValidation is returned when a request field is malformed.
	ErrValidation = domain.NewError(domain.KindValidation, "VALIDATION_FAILED", "validation failed")

	// ErrInvalidFareInput is returned for negative distance or duration.
	ErrInvalidFareInput = domain.NewError(domain.KindValidation, "INVALID_FARE_INPUT", "distance and duration must be non-negative")

	// ErrInvalidCoordinates is returned when a latitude or longitude is out of range.
	ErrInvalidCoordinates = domain.NewError(domain.KindValidation, "INVALID_COORDINATES", "coordinates out of range")

	// ErrUnauthenticated is returned when no actor accompanies the request.
	ErrUnauthenticated = domain.NewError(domain.KindUnauthenticated, "UNAUTHENTICATED", "authentication required")

	// ErrForbiddenRole is returned when the actor's role may not perform the operation.
	ErrForbiddenRole = domain.NewError(domain.KindAuthorization, "FORBIDDEN_ROLE", "role not permitted for this operation")

	// ErrTenantScope is returned when the actor and the entity belong to different tenants.
	ErrTenantScope = domain.NewError(domain.KindAuthorization, "TENANT_SCOPE_VIOLATION", "entity belongs to another tenant")

	// ErrNotAssignedDriver is returned when a driver acts on a ride assigned to someone else.
	ErrNotAssignedDriver = domain.NewError(domain.KindAuthorization, "NOT_ASSIGNED_DRIVER", "driver is not assigned to this ride")

	// ErrNotRidePassenger is returned when a passenger acts on another passenger's ride.
	ErrNotRidePassenger = domain.NewError(domain.KindAuthorization, "NOT_RIDE_PASSENGER", "passenger does not own this ride")

	// ErrNotReservationOwner is returned when a passenger acts on another passenger's reservation.
	ErrNotReservationOwner = domain.NewError(domain.KindAuthorization, "NOT_RESERVATION_OWNER", "passenger does not own this reservation")

	// ErrRideNotFound is returned when a ride does not exist.
	ErrRideNotFound = domain.NewError(domain.KindNotFound, "RIDE_NOT_FOUND", "ride not found")

	// ErrTerminalNotFound is returned when a terminal does not exist.
	ErrTerminalNotFound = domain.NewError(domain.KindNotFound, "TERMINAL_NOT_FOUND", "terminal not found")

	// ErrReservationNotFound is returned when a reservation does not exist.
	ErrReservationNotFound = domain.NewError(domain.KindNotFound, "RESERVATION_NOT_FOUND", "reservation not found")

	// ErrInvalidReservationStatus is returned when a queue operation does not apply to the reservation's status.
	ErrInvalidReservationStatus = domain.NewError(domain.KindConflict, "INVALID_RESERVATION_STATUS", "reservation status does not allow this operation")

	// ErrActiveRideConflict is returned when a ride insert keeps colliding with
	// an active ride that cannot be read back.
	ErrActiveRideConflict = domain.NewError(domain.KindConflict, "ACTIVE_RIDE_CONFLICT", "passenger already has an active ride")

	// ErrTerminalFull is returned when a terminal queue has reached capacity.
	ErrTerminalFull = domain.NewError(domain.KindConflict, "TERMINAL_FULL", "terminal queue is full")

	// ErrInternal is returned in place of storage and other unexpected failures.
	ErrInternal = domain.NewError(domain.KindInternal, "INTERNAL", "internal error")

	// ErrInvalidTransition aliases the state machine's rejection.
	ErrInvalidTransition = domain.ErrInvalidTransition

	// ErrRoutingUnavailable aliases the routing provider failure.
	ErrRoutingUnavailable = domain.ErrRoutingUnavailable

	// ErrRoutingEmpty aliases the routing provider's empty answer.
	ErrRoutingEmpty = domain.ErrRoutingEmpty
)
