package resilience

// ComputeLoss returns the loss of resilience of a capacity deficit that starts
// at initialLoss and recovers linearly to zero over recoverySeconds: the area
// of the triangle, initialLoss*recoverySeconds/2.
func ComputeLoss(initialLoss, recoverySeconds float64) (float64, error) {
	if err := checkMeasurement("initial loss", initialLoss); err != nil {
		return 0, err
	}
	if err := checkMeasurement("recovery time", recoverySeconds); err != nil {
		return 0, err
	}
	if initialLoss == 0 || recoverySeconds == 0 {
		return 0, nil
	}
	return initialLoss * recoverySeconds / 2, nil
}

// ResolveMaxLor returns the declared bound, or the loss implied by the other
// two bounds when none was declared.
func ResolveMaxLor(declared *float64, initialLoss, recoverySeconds float64) (float64, error) {
	if declared != nil {
		if err := checkMeasurement("max lor", *declared); err != nil {
			return 0, err
		}
		return *declared, nil
	}
	return ComputeLoss(initialLoss, recoverySeconds)
}
