package timetag

// ApplyFlatField divides every event's weight by the flat-field value
// at the event's corrected position.  Events landing outside the map or
// on a dead cell (value <= 0) keep their weight unchanged.
func ApplyFlatField(events *EventTable, flat FlatField) bool {
	applied := false
	for i := range events.Epsilon {
		ix := int(events.XCorr[i]) - flat.OriginX
		iy := int(events.YCorr[i]) - flat.OriginY
		if ix < 0 || ix >= flat.NX || iy < 0 || iy >= flat.NY {
			continue
		}
		value := flat.Data[iy*flat.NX+ix]
		if value <= 0. {
			continue
		}
		events.Epsilon[i] /= float32(value)
		applied = true
	}
	return applied
}
