package domain

// RideAction is a lifecycle action requested against a ride.
type RideAction string

const (
	ActionStartHeading    RideAction = "start_heading"
	ActionArrivePickup    RideAction = "arrive_pickup"
	ActionStartTrip       RideAction = "start_trip"
	ActionCompleteTrip    RideAction = "complete_trip"
	ActionDriverCancel    RideAction = "driver_cancel"
	ActionPassengerCancel RideAction = "passenger_cancel"
)

type transitionRule struct {
	from   []RideStatus
	target RideStatus
	actor  Role
}

var transitions = map[RideAction]transitionRule{
	ActionStartHeading: {
		from:   []RideStatus{RideStatusMatched},
		target: RideStatusEnRoute,
		actor:  RoleDriver,
	},
	ActionArrivePickup: {
		from:   []RideStatus{RideStatusEnRoute},
		target: RideStatusArrived,
		actor:  RoleDriver,
	},
	ActionStartTrip: {
		from:   []RideStatus{RideStatusArrived},
		target: RideStatusInTrip,
		actor:  RoleDriver,
	},
	ActionCompleteTrip: {
		from:   []RideStatus{RideStatusInTrip},
		target: RideStatusCompleted,
		actor:  RoleDriver,
	},
	ActionDriverCancel: {
		from:   []RideStatus{RideStatusMatched, RideStatusEnRoute, RideStatusArrived},
		target: RideStatusCancelled,
		actor:  RoleDriver,
	},
	ActionPassengerCancel: {
		from:   []RideStatus{RideStatusSearching, RideStatusMatched, RideStatusEnRoute},
		target: RideStatusCancelled,
		actor:  RolePassenger,
	},
}

// ActionActor returns the role allowed to perform the action.
func ActionActor(action RideAction) (Role, bool) {
	rule, ok := transitions[action]
	if !ok {
		return "", false
	}
	return rule.actor, true
}

// Transition returns the status reached by applying action to status.
// Terminal statuses never transition.
func Transition(status RideStatus, action RideAction) (RideStatus, error) {
	rule, ok := transitions[action]
	if !ok {
		return "", ErrInvalidTransition.WithMessage("unknown action %q", action)
	}
	for _, from := range rule.from {
		if from == status {
			return rule.target, nil
		}
	}
	return "", ErrInvalidTransition.WithMessage("cannot %s a ride that is %s", action, status)
}
