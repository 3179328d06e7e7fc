package route

// Path identifies a page of the application
type Path string

const (
	Login     Path = "/"
	Bills     Path = "#employee/bills"
	NewBill   Path = "#employee/bill/new"
	Dashboard Path = "#admin/dashboard"
)

// EmployeeType is the user type that owns bills
const EmployeeType = "Employee"

// Navigator moves the application to another page
type Navigator interface {
	Navigate(path Path)
}

// NavigatorFunc adapts a function to a Navigator
type NavigatorFunc func(path Path)

// Navigate calls f(path)
func (f NavigatorFunc) Navigate(path Path) {
	f(path)
}

// ForUser returns the landing page of a user type. Employees land on their bills,
// everyone else on the admin dashboard.
func ForUser(userType string) Path {
	if userType == EmployeeType {
		return Bills
	}
	return Dashboard
}

// Recorder is a Navigator that remembers every navigation, in order
type Recorder struct {
	Visited []Path
}

// Navigate appends path to the visited pages
func (r *Recorder) Navigate(path Path) {
	r.Visited = append(r.Visited, path)
}

// Current returns the last visited page, or Login when nothing was visited
func (r *Recorder) Current() Path {
	if len(r.Visited) == 0 {
		return Login
	}
	return r.Visited[len(r.Visited)-1]
}
