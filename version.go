package dcpx

var buildVersion = "0.1.0-dev"
