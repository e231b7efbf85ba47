package robustpgo

// Uncertain is a pose carrying a measure of its uncertainty. U is the
// implementing type itself, so that operations return concrete values.
// Implementations are immutable: every operation returns a new value.
type Uncertain[T Pose[T], U any] interface {
	Pose() T                  // Returns the underlying pose
	Compose(other U) U        // Returns the composition with propagated uncertainty
	Inverse() U               // Returns the inverse with propagated uncertainty
	Between(other U) U        // Returns the pose of other relative to the receiver
	Norm() float64            // Returns the consistency norm of the pose error
	PSD() bool                // Returns whether the uncertainty is known to be valid
	FromFactor(f Factor[T]) U // Builds a value from a measurement, the receiver is ignored
	Anchor(pose T) U          // Builds a certain value at pose, the receiver is ignored
	String() string           // Stringer interface implementation
}
