package auth

// CourseRef carries the course fields the policy needs.
type CourseRef struct {
	ID         int64
	LecturerID *int64
}

// ExamRef carries the exam fields the policy needs. ChairID is the chair of
// the exam's committee.
type ExamRef struct {
	ID      int64
	ChairID *int64
}

// CanManageSelection decides whether actor may view or change the question
// selection of course for exam. First matching rule wins.
func CanManageSelection(actor *Actor, course CourseRef, exam ExamRef) bool {
	if !actor.Authenticated() {
		return false
	}
	if actor.IsSuperuser {
		return true
	}
	if actor.IsFaculty(course.LecturerID) {
		return true
	}
	if actor.IsFaculty(exam.ChairID) {
		return true
	}
	return false
}

// CanEditExamQuota covers the bulk quota editor and exam locking.
func CanEditExamQuota(actor *Actor, exam ExamRef) bool {
	if !actor.Authenticated() {
		return false
	}
	return actor.IsSuperuser || actor.IsFaculty(exam.ChairID)
}

// CanViewAllExamCourses reports whether the exam summary lists every course of
// the committee instead of only the actor's own.
func CanViewAllExamCourses(actor *Actor, exam ExamRef) bool {
	return CanEditExamQuota(actor, exam)
}

func CanEditCourse(actor *Actor, course CourseRef) bool {
	if !actor.Authenticated() {
		return false
	}
	return actor.IsSuperuser || actor.IsFaculty(course.LecturerID)
}

// CanEditQuestion: superuser or the question's lecturer.
func CanEditQuestion(actor *Actor, lecturerID *int64) bool {
	if !actor.Authenticated() {
		return false
	}
	return actor.IsSuperuser || actor.IsFaculty(lecturerID)
}

// CanAddQuestion allows the course lecturer and the committee chair to file
// questions into a course.
func CanAddQuestion(actor *Actor, course CourseRef, committeeChairID *int64) bool {
	if !actor.Authenticated() {
		return false
	}
	return actor.IsSuperuser || actor.IsFaculty(course.LecturerID) || actor.IsFaculty(committeeChairID)
}

// CanExportAll reports whether exports include every lecturer's questions.
func CanExportAll(actor *Actor) bool {
	if !actor.Authenticated() {
		return false
	}
	return actor.IsSuperuser || actor.IsStaff
}
