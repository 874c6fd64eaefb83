package workouts

// Progress is the position of a guided workout session: the current exercise and the
// 1-based set within it.
type Progress struct {
	SheetID       string `json:"sheetId"`
	ExerciseIndex int    `json:"exerciseIndex"`
	Set           int    `json:"set"`
	TotalSets     int    `json:"totalSets"`
	Finished      bool   `json:"finished"`
}

// Start returns the first position of a session on the given sheet.
func Start(sheet Sheet) Progress {
	p := Progress{SheetID: sheet.ID, Set: 1}
	if len(sheet.Exercises) == 0 {
		p.Finished = true
		return p
	}
	p.TotalSets = sheet.Exercises[0].Sets.Int()
	return p
}

// Next marks the current set as done and returns the following position.
func (p Progress) Next(sheet Sheet) Progress {
	if p.Finished || len(sheet.Exercises) == 0 {
		return Progress{SheetID: sheet.ID, ExerciseIndex: p.ExerciseIndex, Set: p.Set, Finished: true}
	}

	index := p.ExerciseIndex
	if index < 0 || index >= len(sheet.Exercises) {
		index = 0
	}
	set := p.Set
	if set < 1 {
		set = 1
	}

	totalSets := sheet.Exercises[index].Sets.Int()
	if set < totalSets {
		return Progress{SheetID: sheet.ID, ExerciseIndex: index, Set: set + 1, TotalSets: totalSets}
	}
	if index < len(sheet.Exercises)-1 {
		return Progress{
			SheetID:       sheet.ID,
			ExerciseIndex: index + 1,
			Set:           1,
			TotalSets:     sheet.Exercises[index+1].Sets.Int(),
		}
	}
	return Progress{SheetID: sheet.ID, ExerciseIndex: index, Set: set, TotalSets: totalSets, Finished: true}
}
